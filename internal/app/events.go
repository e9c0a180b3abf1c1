package service

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/scoring"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// CreateEvent creates an event in the preliminary round. Weight problems are
// returned as warnings alongside the event.
func (s *Service) CreateEvent(ctx context.Context, req types.CreateEventRequest) (resp types.EventResponse, err error) {
	ctx, span := s.startSpan(ctx, "CreateEvent", attribute.Int("criteria", len(req.Criteria)))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.EventResponse{}, err
	}
	if err := validate.Struct(req); err != nil {
		return types.EventResponse{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ev := model.Event{
		Name:         req.Name,
		Criteria:     model.NormalizeCriteria(req.Criteria),
		CurrentRound: model.RoundPreliminary,
	}
	if err := model.ValidateEvent(&ev); err != nil {
		return types.EventResponse{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := store.CreateEvent(ctx, &ev); err != nil {
		return types.EventResponse{}, fmt.Errorf("create event: %w", err)
	}

	warnings := s.checkWeights(ctx, &ev)
	s.logger.Info(ctx, "event created",
		logger.String("eventID", ev.ID),
		logger.Int("criteria", len(ev.Criteria)),
		logger.Int("warnings", len(warnings)),
	)
	return types.EventResponse{Event: ev, Warnings: warnings}, nil
}

// GetEvent returns an event with its current weight warnings.
func (s *Service) GetEvent(ctx context.Context, eventID string) (resp types.EventResponse, err error) {
	ctx, span := s.startSpan(ctx, "GetEvent", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.EventResponse{}, err
	}
	ev, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return types.EventResponse{}, err
	}
	return types.EventResponse{Event: ev, Warnings: scoring.CheckWeights(ev.Criteria)}, nil
}

// UpdateCriteria replaces the criteria of an event. A criterion sent without
// an id keeps the id of the existing criterion with the same name, so a
// round trip of the schema never re-derives ids. Renames must send the id:
// an update that drops a criterion while adding an unknown one without an id
// is rejected. Totals of every contestant change with the new weights.
func (s *Service) UpdateCriteria(ctx context.Context, eventID string, req types.UpdateCriteriaRequest) (resp types.EventResponse, err error) {
	ctx, span := s.startSpan(ctx, "UpdateCriteria",
		attribute.String("event.id", eventID), attribute.Int("criteria", len(req.Criteria)))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.EventResponse{}, err
	}
	current, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return types.EventResponse{}, err
	}

	carried, added := carryIDs(current.Criteria, req.Criteria)
	if removed := droppedIDs(current.Criteria, carried); len(removed) > 0 && len(added) > 0 {
		// A new name without an id would get a fresh key and orphan the
		// scores recorded under the old one.
		return types.EventResponse{}, fmt.Errorf("%w: criteria %q replace %q without ids; send the existing id to rename a criterion",
			ErrInvalidInput, added, removed)
	}
	criteria := model.NormalizeCriteria(carried)
	if err := model.ValidateCriteria(criteria); err != nil {
		return types.EventResponse{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	ev, err := store.UpdateCriteria(ctx, eventID, criteria)
	if err != nil {
		return types.EventResponse{}, fmt.Errorf("update criteria: %w", err)
	}
	return types.EventResponse{Event: ev, Warnings: s.checkWeights(ctx, &ev)}, nil
}

// carryIDs fills missing ids in next from current criteria matched by name.
// It returns the names of criteria that still have no id.
func carryIDs(current, next []model.Criterion) ([]model.Criterion, []string) {
	byName := make(map[string]string, len(current))
	for _, c := range current {
		byName[model.LegacyKey(c.Name)] = c.ID
	}
	out := slices.Clone(next)
	var added []string
	for i := range out {
		if out[i].ID != "" {
			continue
		}
		if id, ok := byName[model.LegacyKey(out[i].Name)]; ok {
			out[i].ID = id
			continue
		}
		added = append(added, out[i].Name)
	}
	return out, added
}

// droppedIDs returns the ids of current criteria missing from next.
func droppedIDs(current, next []model.Criterion) []string {
	var out []string
	for _, c := range current {
		if !slices.ContainsFunc(next, func(n model.Criterion) bool { return n.ID == c.ID }) {
			out = append(out, c.ID)
		}
	}
	return out
}

// SetScoresLocked opens or closes score submission for an event.
func (s *Service) SetScoresLocked(ctx context.Context, eventID string, locked bool) (ev model.Event, err error) {
	ctx, span := s.startSpan(ctx, "SetScoresLocked",
		attribute.String("event.id", eventID), attribute.Bool("locked", locked))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Event{}, err
	}
	ev, err = store.SetScoresLocked(ctx, eventID, locked)
	if err != nil {
		return model.Event{}, err
	}
	s.logger.Info(ctx, "score lock changed", logger.String("eventID", eventID), logger.Bool("locked", locked))
	return ev, nil
}

func (s *Service) checkWeights(ctx context.Context, ev *model.Event) []scoring.Warning {
	warnings := scoring.CheckWeights(ev.Criteria)
	for _, w := range warnings {
		metrics.RecordWeightWarning()
		s.logger.Warn(ctx, "criteria weights", logger.String("eventID", ev.ID), logger.String("code", w.Code))
	}
	return warnings
}

// RegisterContestant adds a contestant to an event. Registration is closed
// once the event is completed.
func (s *Service) RegisterContestant(ctx context.Context, eventID string, req types.RegisterContestantRequest) (c model.Contestant, err error) {
	ctx, span := s.startSpan(ctx, "RegisterContestant", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Contestant{}, err
	}
	if err := validate.Struct(req); err != nil {
		return model.Contestant{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	ev, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Contestant{}, err
	}
	if ev.CurrentRound == model.RoundCompleted {
		return model.Contestant{}, ErrEventClosed
	}

	c = model.Contestant{EventID: eventID, Name: req.Name, Status: model.StatusRegistered}
	if err := store.CreateContestant(ctx, &c); err != nil {
		return model.Contestant{}, fmt.Errorf("register contestant: %w", err)
	}
	return c, nil
}

// ListContestants returns the contestants of an event in registration order.
func (s *Service) ListContestants(ctx context.Context, eventID string) ([]model.Contestant, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	if _, err := store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return store.ListContestants(ctx, eventID)
}

// DeleteContestant removes a contestant and then its score records. The
// cleanup is not atomic with the delete: a failure there is logged and the
// orphaned records are ignored by aggregation since no contestant matches.
func (s *Service) DeleteContestant(ctx context.Context, contestantID string) (res types.DeleteResult, err error) {
	ctx, span := s.startSpan(ctx, "DeleteContestant", attribute.String("contestant.id", contestantID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.DeleteResult{}, err
	}
	if err := store.DeleteContestant(ctx, contestantID); err != nil {
		return types.DeleteResult{}, err
	}

	res = types.DeleteResult{ContestantID: contestantID}
	n, cleanupErr := store.DeleteScoresForContestant(ctx, contestantID)
	if cleanupErr != nil {
		metrics.RecordErrorByComponent("service", "score_cleanup")
		s.logger.Error(ctx, "score cleanup failed",
			logger.String("contestantID", contestantID), logger.Error(cleanupErr))
		return res, nil
	}
	res.RecordsRemoved = n
	return res, nil
}
