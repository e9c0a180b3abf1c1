package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ranking"
	"github.com/okian/podium/internal/domain/scoring"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// submissionKey namespaces submission ids in the dedupe cache.
func submissionKey(id string) string { return "submission/" + id }

// SubmitScore appends one judge's scores for a contestant. Keys are resolved
// to criterion ids. A repeated submission id is acknowledged as a duplicate
// and nothing is appended.
func (s *Service) SubmitScore(ctx context.Context, req types.SubmitScoreRequest) (res types.SubmitResult, err error) {
	ctx, span := s.startSpan(ctx, "SubmitScore",
		attribute.String("event.id", req.EventID),
		attribute.String("contestant.id", req.ContestantID),
		attribute.String("judge.id", req.JudgeID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.SubmitResult{}, err
	}
	if err := validate.Struct(req); err != nil {
		metrics.RecordScoreRejected("invalid")
		return types.SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if req.SubmissionID != "" {
		key := submissionKey(req.SubmissionID)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordScoreDuplicate()
			return types.SubmitResult{Status: types.SubmitDuplicate, Duplicate: true}, nil
		}
		// Forget the id unless the record was stored, so the judge can retry.
		defer func() {
			if err != nil {
				s.deduper.Unrecord(ctx, key)
			}
		}()
	}

	rec, err := s.buildRecord(ctx, store, req)
	if err != nil {
		metrics.RecordScoreRejected(rejectReason(err))
		return types.SubmitResult{}, err
	}

	if err := store.AppendScore(ctx, &rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			metrics.RecordScoreDuplicate()
			return types.SubmitResult{Status: types.SubmitDuplicate, Duplicate: true}, nil
		}
		metrics.RecordErrorByComponent("service", "append_score")
		return types.SubmitResult{}, fmt.Errorf("append score: %w", err)
	}

	metrics.RecordScoreSubmitted()
	s.logger.Debug(ctx, "score recorded",
		logger.String("recordID", rec.ID),
		logger.String("judgeID", rec.JudgeID),
		logger.String("contestantID", rec.ContestantID),
		logger.Int("criteria", len(rec.Scores)),
	)
	return types.SubmitResult{Status: types.SubmitAccepted, RecordID: rec.ID}, nil
}

// buildRecord checks that scoring is open for the contestant and resolves
// the submitted keys against the current criteria.
func (s *Service) buildRecord(ctx context.Context, store repository.Store, req types.SubmitScoreRequest) (model.ScoreRecord, error) {
	var (
		ev model.Event
		c  model.Contestant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ev, err = store.GetEvent(gctx, req.EventID)
		return err
	})
	g.Go(func() (err error) {
		c, err = store.GetContestant(gctx, req.ContestantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.ScoreRecord{}, err
	}

	if c.EventID != ev.ID {
		return model.ScoreRecord{}, fmt.Errorf("%w: contestant %s is not registered to event %s", ErrInvalidInput, c.ID, ev.ID)
	}
	switch {
	case ev.ScoresLocked:
		return model.ScoreRecord{}, fmt.Errorf("%w: scores are locked", ErrScoringClosed)
	case ev.CurrentRound == model.RoundCompleted:
		return model.ScoreRecord{}, fmt.Errorf("%w: event is completed", ErrScoringClosed)
	case !c.Active():
		return model.ScoreRecord{}, fmt.Errorf("%w: contestant is eliminated", ErrScoringClosed)
	}

	scores, err := ev.ResolveScoreKeys(req.Scores)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	rec := model.ScoreRecord{
		SubmissionID: req.SubmissionID,
		JudgeID:      req.JudgeID,
		ContestantID: c.ID,
		EventID:      ev.ID,
		Scores:       scores,
		Timestamp:    s.now(),
	}
	if err := model.ValidateScoreRecord(&rec); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return rec, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrScoringClosed):
		return "closed"
	case errors.Is(err, model.ErrUnknownCriteria):
		return "unknown_criterion"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case isNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

// GetComposite aggregates one contestant against the current criteria.
func (s *Service) GetComposite(ctx context.Context, contestantID string) (comp types.Composite, err error) {
	ctx, span := s.startSpan(ctx, "GetComposite", attribute.String("contestant.id", contestantID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.Composite{}, err
	}
	c, err := store.GetContestant(ctx, contestantID)
	if err != nil {
		return types.Composite{}, err
	}

	var (
		ev      model.Event
		records []model.ScoreRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ev, err = store.GetEvent(gctx, c.EventID)
		return err
	})
	g.Go(func() (err error) {
		records, err = store.ListScoresForContestant(gctx, c.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Composite{}, err
	}
	return types.NewComposite(scoring.Aggregate(c.ID, c.EventID, records, ev.Criteria)), nil
}

// GetRankedContestants recomputes the standings of an event from the store.
// Concurrent calls for the same event share one computation, so the result
// must be treated as read-only.
func (s *Service) GetRankedContestants(ctx context.Context, eventID string) (out types.Standings, err error) {
	ctx, span := s.startSpan(ctx, "GetRankedContestants", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	store, err := s.ready()
	if err != nil {
		return types.Standings{}, err
	}
	// The shared computation outlives any one caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	flight := s.standings.DoChan(eventID, func() (any, error) {
		ev, ranked, warnings, err := s.rank(flightCtx, store, eventID)
		if err != nil {
			return types.Standings{}, err
		}
		return types.NewStandings(&ev, ranked, warnings), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return types.Standings{}, ctx.Err()
	case res = <-flight:
	}
	span.SetAttributes(attribute.Bool("shared", res.Shared))
	if res.Err != nil {
		return types.Standings{}, res.Err
	}
	return res.Val.(types.Standings), nil
}

// rank loads an event with its contestants and records and ranks them.
func (s *Service) rank(ctx context.Context, store repository.Store, eventID string) (model.Event, []ranking.Standing, []scoring.Warning, error) {
	var (
		ev          model.Event
		contestants []model.Contestant
		records     []model.ScoreRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ev, err = store.GetEvent(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		contestants, err = store.ListContestants(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		records, err = store.ListScores(gctx, eventID)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Event{}, nil, nil, err
	}

	composites := scoring.AggregateAll(records, contestants, ev.Criteria)
	ranked := ranking.Rank(ranking.Build(contestants, composites))
	return ev, ranked, scoring.CheckWeights(ev.Criteria), nil
}
