package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
)

// CreateEvent implements repository.EventStore.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	defer s.observeWrite("create_event", time.Now())

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CurrentRound == "" {
		e.CurrentRound = model.RoundPreliminary
	}
	criteria, err := json.Marshal(e.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	now := s.now()

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Name, string(criteria), string(e.CurrentRound), e.ScoresLocked, unixNano(now), unixNano(now))
	if isUniqueViolation(err) {
		return fmt.Errorf("event %s: %w", e.ID, repository.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.CreatedAt = fromUnixNano(unixNano(now))
	e.UpdatedAt = e.CreatedAt

	s.feed.Publish(repository.Change{Collection: repository.CollectionEvents, Op: repository.OpInsert, EventID: e.ID})
	return nil
}

// GetEvent implements repository.EventStore.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	defer s.observeQuery("get_event", time.Now())
	return s.getEvent(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getEvent(ctx context.Context, q queryer, id string) (model.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, repository.ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents implements repository.EventStore. Events are ordered by
// creation time.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	defer s.observeQuery("list_events", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) updateEvent(ctx context.Context, id, op, set string, arg any) (model.Event, error) {
	defer s.observeWrite(op, time.Now())

	var out model.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE events SET `+set+` = ?, updated_at = ? WHERE id = ?`),
			arg, unixNano(s.now()), id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return repository.ErrEventNotFound
		}
		out, err = s.getEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Event{}, err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionEvents, Op: repository.OpUpdate, EventID: id})
	return out, nil
}

// UpdateCriteria implements repository.EventStore.
func (s *Store) UpdateCriteria(ctx context.Context, eventID string, criteria []model.Criterion) (model.Event, error) {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode criteria: %w", err)
	}
	return s.updateEvent(ctx, eventID, "update_criteria", "criteria", string(raw))
}

// SetScoresLocked implements repository.EventStore.
func (s *Store) SetScoresLocked(ctx context.Context, eventID string, locked bool) (model.Event, error) {
	return s.updateEvent(ctx, eventID, "set_scores_locked", "scores_locked", locked)
}
