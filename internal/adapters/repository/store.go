// Package repository defines the document store the engine reads from and
// appends to, its change feed, and the in-memory implementations of both.
package repository

import (
	"context"

	"github.com/okian/podium/internal/domain/model"
)

// Collection names a document collection of the store.
type Collection string

// Store collections.
const (
	CollectionEvents      Collection = "events"
	CollectionContestants Collection = "contestants"
	CollectionScores      Collection = "scores"
)

// Op is the kind of change made to a document.
type Op string

// Change operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a notification about one document write. It carries keys only;
// consumers read current state back from the store.
type Change struct {
	Collection   Collection `json:"collection"`
	Op           Op         `json:"op"`
	EventID      string     `json:"eventId"`
	ContestantID string     `json:"contestantId,omitempty"`
	RecordID     string     `json:"recordId,omitempty"`
}

// EventStore holds events and their criteria.
type EventStore interface {
	// CreateEvent stores a new event. CreatedAt and UpdatedAt are set by the store.
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	UpdateCriteria(ctx context.Context, eventID string, criteria []model.Criterion) (model.Event, error)
	SetScoresLocked(ctx context.Context, eventID string, locked bool) (model.Event, error)
}

// ContestantStore holds contestants.
type ContestantStore interface {
	// CreateContestant stores a new contestant and assigns its Seq.
	CreateContestant(ctx context.Context, c *model.Contestant) error
	GetContestant(ctx context.Context, id string) (model.Contestant, error)
	// ListContestants returns the contestants of an event in registration order.
	ListContestants(ctx context.Context, eventID string) ([]model.Contestant, error)
	// UpdateContestantStatus applies an admin override. Eliminated contestants
	// cannot be changed and yield ErrAlreadyEliminated.
	UpdateContestantStatus(ctx context.Context, u model.StatusUpdate) (model.Contestant, error)
	DeleteContestant(ctx context.Context, id string) error
}

// ScoreStore is the append-only score record log.
type ScoreStore interface {
	// AppendScore stores r and assigns its Seq. A repeated non-empty
	// SubmissionID yields ErrDuplicateSubmission and nothing is written.
	AppendScore(ctx context.Context, r *model.ScoreRecord) error
	// ListScores returns every record of an event in append order.
	ListScores(ctx context.Context, eventID string) ([]model.ScoreRecord, error)
	ListScoresForContestant(ctx context.Context, contestantID string) ([]model.ScoreRecord, error)
	DeleteScoresForContestant(ctx context.Context, contestantID string) (int, error)
}

// RoundStore owns the round serialization point.
type RoundStore interface {
	// ApplyTransition writes the updates and the new round only if the event
	// is still in t.From; otherwise it returns ErrRoundConflict and writes nothing.
	ApplyTransition(ctx context.Context, t model.Transition) (model.Event, error)
	// EliminateContestant eliminates one contestant if the event is still in
	// round and the contestant is still active.
	EliminateContestant(ctx context.Context, contestantID string, round model.Round) (model.Contestant, error)
}

// Store is the full document store.
type Store interface {
	EventStore
	ContestantStore
	ScoreStore
	RoundStore
	Close() error
}

// Watcher provides change notifications keyed by collection. The returned
// channel is closed when ctx is done or when the feed fails; callers tell the
// two apart by checking ctx.Err().
type Watcher interface {
	Watch(ctx context.Context, collections ...Collection) (<-chan Change, error)
}
