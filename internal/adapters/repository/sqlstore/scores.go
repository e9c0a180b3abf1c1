package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
)

// AppendScore implements repository.ScoreStore. The unique submission_id
// column makes resubmissions fail with ErrDuplicateSubmission.
func (s *Store) AppendScore(ctx context.Context, r *model.ScoreRecord) error {
	defer s.observeWrite("append_score", time.Now())

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	submission := sql.NullString{String: r.SubmissionID, Valid: r.SubmissionID != ""}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getEvent(ctx, tx, r.EventID); err != nil {
			return err
		}
		seq, err := s.insertSeq(ctx, tx,
			`INSERT INTO score_records (id, submission_id, judge_id, contestant_id, event_id, scores, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, submission, r.JudgeID, r.ContestantID, r.EventID, string(scores), unixNano(r.Timestamp))
		if isUniqueViolation(err) && submission.Valid {
			return repository.ErrDuplicateSubmission
		}
		if err != nil {
			return fmt.Errorf("insert score record: %w", err)
		}
		r.Seq = seq
		return nil
	})
	if err != nil {
		return err
	}

	s.feed.Publish(repository.Change{Collection: repository.CollectionScores, Op: repository.OpInsert, EventID: r.EventID, ContestantID: r.ContestantID, RecordID: r.ID})
	return nil
}

func (s *Store) listScores(ctx context.Context, op, where string, arg any) ([]model.ScoreRecord, error) {
	defer s.observeQuery(op, time.Now())

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+scoreColumns+` FROM score_records WHERE `+where+` = ? ORDER BY seq`), arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScoreRecord
	for rows.Next() {
		r, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListScores implements repository.ScoreStore.
func (s *Store) ListScores(ctx context.Context, eventID string) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "list_scores", "event_id", eventID)
}

// ListScoresForContestant implements repository.ScoreStore.
func (s *Store) ListScoresForContestant(ctx context.Context, contestantID string) ([]model.ScoreRecord, error) {
	return s.listScores(ctx, "list_scores_for_contestant", "contestant_id", contestantID)
}

// DeleteScoresForContestant implements repository.ScoreStore.
func (s *Store) DeleteScoresForContestant(ctx context.Context, contestantID string) (int, error) {
	defer s.observeWrite("delete_scores", time.Now())

	var (
		removed int64
		events  []string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.q(`SELECT DISTINCT event_id FROM score_records WHERE contestant_id = ?`), contestantID)
		if err != nil {
			return fmt.Errorf("find score events: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			events = append(events, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM score_records WHERE contestant_id = ?`), contestantID)
		if err != nil {
			return fmt.Errorf("delete score records: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, eventID := range events {
		s.feed.Publish(repository.Change{Collection: repository.CollectionScores, Op: repository.OpDelete, EventID: eventID, ContestantID: contestantID})
	}
	return int(removed), nil
}
