// Package sqlstore implements the repository Store on SQL databases:
// SQLite (modernc), PostgreSQL (pgx) and MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const pgUniqueViolation = "23505"

// Store is a repository.Store and repository.Watcher backed by database/sql.
// Changes are published to in-process watchers after each commit.
type Store struct {
	db      *sql.DB
	backend string
	feed    *repository.Broadcaster
	now     func() time.Time
	log     logger.Logger
}

var (
	_ repository.Store   = (*Store)(nil)
	_ repository.Watcher = (*Store)(nil)
)

// Option configures a Store.
type Option func(*options)

type options struct {
	now         func() time.Time
	watchBuffer int
	migrate     bool
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWatchBuffer sets the per-watcher change buffer.
func WithWatchBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.watchBuffer = n
		}
	}
}

// WithAutoMigrate controls whether Open migrates the schema to the latest
// version. Enabled by default.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.migrate = enabled }
}

// Open connects to backend using dsn and returns a ready Store.
func Open(ctx context.Context, backend, dsn string, opts ...Option) (*Store, error) {
	o := options{now: func() time.Time { return time.Now().UTC() }, migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	if o.migrate {
		if _, err := Migrate(backend, dsn, -1); err != nil {
			return nil, err
		}
	}

	db, err := openDB(backend, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}

	return &Store{
		db:      db,
		backend: backend,
		feed:    repository.NewBroadcaster(o.watchBuffer),
		now:     o.now,
		log:     logger.Named("sqlstore"),
	}, nil
}

func openDB(backend, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty dsn", backend)
	}
	switch backend {
	case config.StoreSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
		}
		// One writer at a time avoids "database is locked".
		db.SetMaxOpenConns(1)
		return db, nil
	case config.StorePostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case config.StoreMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Migrations hold several statements and conditional updates count
		// matched rows, not changed ones.
		cfg.MultiStatements = true
		cfg.ClientFoundRows = true
		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported sql backend: %q", backend)
	}
}

// Backend returns the backend name.
func (s *Store) Backend() string { return s.backend }

// Watch implements repository.Watcher.
func (s *Store) Watch(ctx context.Context, collections ...repository.Collection) (<-chan repository.Change, error) {
	return s.feed.Watch(ctx, collections...)
}

// Close closes watchers and the connection pool.
func (s *Store) Close() error {
	s.feed.Close()
	return s.db.Close()
}

// q rewrites ? placeholders for the backend.
func (s *Store) q(query string) string {
	if s.backend != config.StorePostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) observeWrite(op string, start time.Time) {
	metrics.RecordStoreWriteLatency(s.backend, op, metrics.SinceMs(start))
}

func (s *Store) observeQuery(op string, start time.Time) {
	metrics.RecordStoreQueryLatency(s.backend, op, metrics.SinceMs(start))
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn(ctx, "rollback failed", logger.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertSeq runs an INSERT and returns the generated seq column.
func (s *Store) insertSeq(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	if s.backend == config.StoreMySQL {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var seq int64
	err := tx.QueryRowContext(ctx, s.q(query+" RETURNING seq"), args...).Scan(&seq)
	return seq, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func unixNano(t time.Time) int64 { return t.UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

const eventColumns = "id, name, criteria, current_round, scores_locked, created_at, updated_at"

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		e                model.Event
		criteria         string
		round            string
		created, updated int64
	)
	if err := row.Scan(&e.ID, &e.Name, &criteria, &round, &e.ScoresLocked, &created, &updated); err != nil {
		return model.Event{}, err
	}
	if err := json.Unmarshal([]byte(criteria), &e.Criteria); err != nil {
		return model.Event{}, fmt.Errorf("decode criteria of %s: %w", e.ID, err)
	}
	e.CurrentRound = model.Round(round)
	e.CreatedAt = fromUnixNano(created)
	e.UpdatedAt = fromUnixNano(updated)
	return e, nil
}

const contestantColumns = "id, event_id, name, seq, status, eliminated_round, final_rank, registered_at"

func scanContestant(row rowScanner) (model.Contestant, error) {
	var (
		c             model.Contestant
		status, round string
		registered    int64
	)
	if err := row.Scan(&c.ID, &c.EventID, &c.Name, &c.Seq, &status, &round, &c.FinalRank, &registered); err != nil {
		return model.Contestant{}, err
	}
	c.Status = model.Status(status)
	c.EliminatedRound = model.Round(round)
	c.RegisteredAt = fromUnixNano(registered)
	return c, nil
}

const scoreColumns = "id, seq, submission_id, judge_id, contestant_id, event_id, scores, ts"

func scanScore(row rowScanner) (model.ScoreRecord, error) {
	var (
		r          model.ScoreRecord
		submission sql.NullString
		scores     string
		ts         int64
	)
	if err := row.Scan(&r.ID, &r.Seq, &submission, &r.JudgeID, &r.ContestantID, &r.EventID, &scores, &ts); err != nil {
		return model.ScoreRecord{}, err
	}
	if err := json.Unmarshal([]byte(scores), &r.Scores); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("decode scores of %s: %w", r.ID, err)
	}
	r.SubmissionID = submission.String
	r.Timestamp = fromUnixNano(ts)
	return r, nil
}
