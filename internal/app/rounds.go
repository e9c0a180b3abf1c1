package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/rounds"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// AdvanceRound ranks the event and moves it to the next round, applying the
// cutoff of the round being left. Of two concurrent calls only one applies;
// the other gets rounds.ErrRoundConflict.
func (s *Service) AdvanceRound(ctx context.Context, eventID string) (tr model.Transition, err error) {
	ctx, span := s.startSpan(ctx, "AdvanceRound", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Transition{}, err
	}
	ev, ranked, _, err := s.rank(ctx, store, eventID)
	if err != nil {
		return model.Transition{}, err
	}
	tr, err = rounds.Advance(&ev, ranked)
	if err != nil {
		return model.Transition{}, err
	}
	return s.apply(ctx, store, tr)
}

// JumpToFinal moves the event straight to the final round.
func (s *Service) JumpToFinal(ctx context.Context, eventID string) (tr model.Transition, err error) {
	ctx, span := s.startSpan(ctx, "JumpToFinal", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Transition{}, err
	}
	ev, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Transition{}, err
	}
	contestants, err := store.ListContestants(ctx, eventID)
	if err != nil {
		return model.Transition{}, err
	}
	tr, err = rounds.JumpToFinal(&ev, contestants)
	if err != nil {
		return model.Transition{}, err
	}
	return s.apply(ctx, store, tr)
}

func (s *Service) apply(ctx context.Context, store repository.Store, tr model.Transition) (model.Transition, error) {
	if _, err := store.ApplyTransition(ctx, tr); err != nil {
		if errors.Is(err, rounds.ErrRoundConflict) {
			metrics.RecordRoundConflict()
			s.logger.Warn(ctx, "round transition lost a race",
				logger.String("eventID", tr.EventID), logger.String("from", string(tr.From)))
		}
		return model.Transition{}, fmt.Errorf("apply transition: %w", err)
	}
	tr.Updates = s.appliedUpdates(ctx, store, tr)

	eliminated := 0
	for _, u := range tr.Updates {
		if u.Status == model.StatusEliminated {
			eliminated++
		}
	}
	metrics.RecordRoundTransition(string(tr.From), string(tr.To))
	metrics.RecordEliminations(string(tr.From), eliminated)
	s.logger.Info(ctx, "round advanced",
		logger.String("eventID", tr.EventID),
		logger.String("from", string(tr.From)),
		logger.String("to", string(tr.To)),
		logger.Int("eliminated", eliminated),
	)
	return tr, nil
}

// appliedUpdates drops planned updates the store skipped because the
// contestant was eliminated after the transition was planned.
func (s *Service) appliedUpdates(ctx context.Context, store repository.Store, tr model.Transition) []model.StatusUpdate {
	contestants, err := store.ListContestants(ctx, tr.EventID)
	if err != nil {
		s.logger.Warn(ctx, "read contestants after transition",
			logger.String("eventID", tr.EventID), logger.Error(err))
		return tr.Updates
	}
	eliminatedIn := make(map[string]model.Round, len(contestants))
	for i := range contestants {
		if !contestants[i].Active() {
			eliminatedIn[contestants[i].ID] = contestants[i].EliminatedRound
		}
	}
	out := tr.Updates[:0:0]
	for _, u := range tr.Updates {
		if round, ok := eliminatedIn[u.ContestantID]; ok && (u.Status != model.StatusEliminated || u.EliminatedRound != round) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// EliminateContestant eliminates one contestant in currentRound, the round
// the caller believes is active. Elimination is irreversible.
func (s *Service) EliminateContestant(ctx context.Context, contestantID string, currentRound model.Round) (c model.Contestant, err error) {
	ctx, span := s.startSpan(ctx, "EliminateContestant",
		attribute.String("contestant.id", contestantID), attribute.String("round", string(currentRound)))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Contestant{}, err
	}
	if !currentRound.Valid() {
		return model.Contestant{}, fmt.Errorf("%w: unknown round %q", ErrInvalidInput, currentRound)
	}
	c, err = store.GetContestant(ctx, contestantID)
	if err != nil {
		return model.Contestant{}, err
	}
	ev, err := store.GetEvent(ctx, c.EventID)
	if err != nil {
		return model.Contestant{}, err
	}
	if _, err := rounds.Eliminate(&ev, &c, currentRound); err != nil {
		if errors.Is(err, rounds.ErrRoundConflict) {
			metrics.RecordRoundConflict()
		}
		return model.Contestant{}, err
	}

	c, err = store.EliminateContestant(ctx, contestantID, currentRound)
	if err != nil {
		if errors.Is(err, rounds.ErrRoundConflict) {
			metrics.RecordRoundConflict()
		}
		return model.Contestant{}, fmt.Errorf("eliminate contestant: %w", err)
	}
	metrics.RecordEliminations(string(currentRound), 1)
	s.logger.Info(ctx, "contestant eliminated",
		logger.String("contestantID", contestantID), logger.String("round", string(currentRound)))
	return c, nil
}

// OverrideStatus applies an admin status change to a contestant.
func (s *Service) OverrideStatus(ctx context.Context, contestantID string, u model.StatusUpdate) (c model.Contestant, err error) {
	ctx, span := s.startSpan(ctx, "OverrideStatus",
		attribute.String("contestant.id", contestantID), attribute.String("status", string(u.Status)))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return model.Contestant{}, err
	}
	c, err = store.GetContestant(ctx, contestantID)
	if err != nil {
		return model.Contestant{}, err
	}
	ev, err := store.GetEvent(ctx, c.EventID)
	if err != nil {
		return model.Contestant{}, err
	}
	u, err = rounds.Override(&ev, &c, u)
	if err != nil {
		return model.Contestant{}, err
	}
	c, err = store.UpdateContestantStatus(ctx, u)
	if err != nil {
		return model.Contestant{}, fmt.Errorf("override status: %w", err)
	}
	s.logger.Info(ctx, "contestant status overridden",
		logger.String("contestantID", contestantID), logger.String("status", string(u.Status)))
	return c, nil
}
