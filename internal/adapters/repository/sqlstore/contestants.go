package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
)

// CreateContestant implements repository.ContestantStore.
func (s *Store) CreateContestant(ctx context.Context, c *model.Contestant) error {
	defer s.observeWrite("create_contestant", time.Now())

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusRegistered
	}
	registered := s.now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getEvent(ctx, tx, c.EventID); err != nil {
			return err
		}
		seq, err := s.insertSeq(ctx, tx,
			`INSERT INTO contestants (id, event_id, name, status, eliminated_round, final_rank, registered_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.EventID, c.Name, string(c.Status), string(c.EliminatedRound), c.FinalRank, unixNano(registered))
		if isUniqueViolation(err) {
			return fmt.Errorf("contestant %s: %w", c.ID, repository.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("insert contestant: %w", err)
		}
		c.Seq = seq
		return nil
	})
	if err != nil {
		return err
	}
	c.RegisteredAt = fromUnixNano(unixNano(registered))

	s.feed.Publish(repository.Change{Collection: repository.CollectionContestants, Op: repository.OpInsert, EventID: c.EventID, ContestantID: c.ID})
	return nil
}

// GetContestant implements repository.ContestantStore.
func (s *Store) GetContestant(ctx context.Context, id string) (model.Contestant, error) {
	defer s.observeQuery("get_contestant", time.Now())
	return s.getContestant(ctx, s.db, id)
}

func (s *Store) getContestant(ctx context.Context, q queryer, id string) (model.Contestant, error) {
	c, err := scanContestant(q.QueryRowContext(ctx, s.q(`SELECT `+contestantColumns+` FROM contestants WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contestant{}, repository.ErrContestantNotFound
	}
	if err != nil {
		return model.Contestant{}, fmt.Errorf("get contestant %s: %w", id, err)
	}
	return c, nil
}

// ListContestants implements repository.ContestantStore.
func (s *Store) ListContestants(ctx context.Context, eventID string) ([]model.Contestant, error) {
	defer s.observeQuery("list_contestants", time.Now())

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+contestantColumns+` FROM contestants WHERE event_id = ? ORDER BY seq`), eventID)
	if err != nil {
		return nil, fmt.Errorf("list contestants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Contestant{}
	for rows.Next() {
		c, err := scanContestant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// writeStatus stores c's status fields if c is still active.
func (s *Store) writeStatus(ctx context.Context, x execer, c model.Contestant, eventID string) (bool, error) {
	res, err := x.ExecContext(ctx, s.q(`UPDATE contestants SET status = ?, eliminated_round = ?, final_rank = ? WHERE id = ? AND event_id = ? AND status <> ?`),
		string(c.Status), string(c.EliminatedRound), c.FinalRank, c.ID, eventID, string(model.StatusEliminated))
	if err != nil {
		return false, fmt.Errorf("update contestant %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateContestantStatus implements repository.ContestantStore.
func (s *Store) UpdateContestantStatus(ctx context.Context, u model.StatusUpdate) (model.Contestant, error) {
	defer s.observeWrite("update_status", time.Now())

	var c model.Contestant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = s.getContestant(ctx, tx, u.ContestantID); err != nil {
			return err
		}
		if !c.Active() {
			return repository.ErrAlreadyEliminated
		}
		u.Apply(&c)
		ok, err := s.writeStatus(ctx, tx, c, c.EventID)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrAlreadyEliminated
		}
		return nil
	})
	if err != nil {
		return model.Contestant{}, err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionContestants, Op: repository.OpUpdate, EventID: c.EventID, ContestantID: c.ID})
	return c, nil
}

// DeleteContestant implements repository.ContestantStore. Score records are
// left for DeleteScoresForContestant.
func (s *Store) DeleteContestant(ctx context.Context, id string) error {
	defer s.observeWrite("delete_contestant", time.Now())

	var c model.Contestant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = s.getContestant(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM contestants WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete contestant %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionContestants, Op: repository.OpDelete, EventID: c.EventID, ContestantID: id})
	return nil
}
