package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
)

// ApplyTransition implements repository.RoundStore. The round column is
// updated only while it still holds t.From, so of two concurrent transitions
// only one matches a row; the other rolls back with ErrRoundConflict.
func (s *Store) ApplyTransition(ctx context.Context, t model.Transition) (model.Event, error) {
	defer s.observeWrite("apply_transition", time.Now())

	var out model.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE events SET current_round = ?, updated_at = ? WHERE id = ? AND current_round = ?`),
			string(t.To), unixNano(s.now()), t.EventID, string(t.From))
		if err != nil {
			return fmt.Errorf("advance event %s: %w", t.EventID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			e, err := s.getEvent(ctx, tx, t.EventID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: event %s is in %q, not %q", repository.ErrRoundConflict, e.ID, e.CurrentRound, t.From)
		}

		for _, u := range t.Updates {
			c, err := s.getContestant(ctx, tx, u.ContestantID)
			if err != nil {
				return err
			}
			if c.EventID != t.EventID {
				return fmt.Errorf("%w: %s", repository.ErrContestantNotFound, u.ContestantID)
			}
			if !c.Active() {
				continue
			}
			u.Apply(&c)
			if _, err := s.writeStatus(ctx, tx, c, t.EventID); err != nil {
				return err
			}
		}

		out, err = s.getEvent(ctx, tx, t.EventID)
		return err
	})
	if err != nil {
		return model.Event{}, err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionEvents, Op: repository.OpUpdate, EventID: t.EventID})
	return out, nil
}

// EliminateContestant implements repository.RoundStore.
func (s *Store) EliminateContestant(ctx context.Context, contestantID string, round model.Round) (model.Contestant, error) {
	defer s.observeWrite("eliminate", time.Now())

	var c model.Contestant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = s.getContestant(ctx, tx, contestantID); err != nil {
			return err
		}
		e, err := s.getEvent(ctx, tx, c.EventID)
		if err != nil {
			return err
		}
		switch {
		case e.CurrentRound == model.RoundCompleted:
			return fmt.Errorf("%w: event is completed", repository.ErrInvalidTransition)
		case e.CurrentRound != round:
			return fmt.Errorf("%w: event %s is in %q, not %q", repository.ErrRoundConflict, e.ID, e.CurrentRound, round)
		case !c.Active():
			return repository.ErrAlreadyEliminated
		}

		res, err := tx.ExecContext(ctx, s.q(`UPDATE contestants SET status = ?, eliminated_round = ?, final_rank = 0
			WHERE id = ? AND status <> ?
			AND event_id IN (SELECT id FROM events WHERE id = ? AND current_round = ?)`),
			string(model.StatusEliminated), string(round), c.ID, string(model.StatusEliminated), c.EventID, string(round))
		if err != nil {
			return fmt.Errorf("eliminate %s: %w", c.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: contestant %s changed concurrently", repository.ErrRoundConflict, c.ID)
		}
		c.Status = model.StatusEliminated
		c.EliminatedRound = round
		c.FinalRank = 0
		return nil
	})
	if err != nil {
		return model.Contestant{}, err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionContestants, Op: repository.OpUpdate, EventID: c.EventID, ContestantID: c.ID})
	return c, nil
}
