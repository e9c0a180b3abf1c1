package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore is an in-process Store and Watcher. Every write publishes a
// Change after the lock is released.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string]model.Event
	contestants map[string]model.Contestant
	byEvent     map[string][]string // contestant ids in seq order
	scores      map[string][]model.ScoreRecord
	submissions map[string]struct{}
	nextSeq     int64
	nextScore   int64
	closed      bool

	now         func() time.Time
	watchBuffer int
	feed        *Broadcaster
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		events:      make(map[string]model.Event),
		contestants: make(map[string]model.Contestant),
		byEvent:     make(map[string][]string),
		scores:      make(map[string][]model.ScoreRecord),
		submissions: make(map[string]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
		watchBuffer: defaultWatchBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.feed = NewBroadcaster(s.watchBuffer)
	return s
}

// Watch implements Watcher.
func (s *MemoryStore) Watch(ctx context.Context, collections ...Collection) (<-chan Change, error) {
	return s.feed.Watch(ctx, collections...)
}

// Close releases watchers. Further writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feed.Close()
	return nil
}

func observeWrite(op string, start time.Time) {
	metrics.RecordStoreWriteLatency(backendMemory, op, metrics.SinceMs(start))
}

func observeQuery(op string, start time.Time) {
	metrics.RecordStoreQueryLatency(backendMemory, op, metrics.SinceMs(start))
}

func cloneEvent(e model.Event) model.Event {
	e.Criteria = slices.Clone(e.Criteria)
	return e
}

// CreateEvent implements EventStore.
func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	defer observeWrite("create_event", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := s.events[e.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("event %s: %w", e.ID, ErrAlreadyExists)
	}
	if e.CurrentRound == "" {
		e.CurrentRound = model.RoundPreliminary
	}
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	s.events[e.ID] = cloneEvent(*e)
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionEvents, Op: OpInsert, EventID: e.ID})
	return nil
}

// GetEvent implements EventStore.
func (s *MemoryStore) GetEvent(_ context.Context, id string) (model.Event, error) {
	defer observeQuery("get_event", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// ListEvents implements EventStore. Events are ordered by creation time.
func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	defer observeQuery("list_events", time.Now())

	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, cloneEvent(e))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) updateEvent(id, op string, fn func(*model.Event) error) (model.Event, error) {
	defer observeWrite(op, time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, ErrClosed
	}
	e, ok := s.events[id]
	if !ok {
		s.mu.Unlock()
		return model.Event{}, ErrEventNotFound
	}
	if err := fn(&e); err != nil {
		s.mu.Unlock()
		return model.Event{}, err
	}
	e.UpdatedAt = s.now()
	s.events[id] = e
	out := cloneEvent(e)
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionEvents, Op: OpUpdate, EventID: id})
	return out, nil
}

// UpdateCriteria implements EventStore.
func (s *MemoryStore) UpdateCriteria(_ context.Context, eventID string, criteria []model.Criterion) (model.Event, error) {
	return s.updateEvent(eventID, "update_criteria", func(e *model.Event) error {
		e.Criteria = slices.Clone(criteria)
		return nil
	})
}

// SetScoresLocked implements EventStore.
func (s *MemoryStore) SetScoresLocked(_ context.Context, eventID string, locked bool) (model.Event, error) {
	return s.updateEvent(eventID, "set_scores_locked", func(e *model.Event) error {
		e.ScoresLocked = locked
		return nil
	})
}

// CreateContestant implements ContestantStore.
func (s *MemoryStore) CreateContestant(_ context.Context, c *model.Contestant) error {
	defer observeWrite("create_contestant", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.events[c.EventID]; !ok {
		s.mu.Unlock()
		return ErrEventNotFound
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.contestants[c.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("contestant %s: %w", c.ID, ErrAlreadyExists)
	}
	s.nextSeq++
	c.Seq = s.nextSeq
	if c.Status == "" {
		c.Status = model.StatusRegistered
	}
	c.RegisteredAt = s.now()
	s.contestants[c.ID] = *c
	s.byEvent[c.EventID] = append(s.byEvent[c.EventID], c.ID)
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionContestants, Op: OpInsert, EventID: c.EventID, ContestantID: c.ID})
	return nil
}

// GetContestant implements ContestantStore.
func (s *MemoryStore) GetContestant(_ context.Context, id string) (model.Contestant, error) {
	defer observeQuery("get_contestant", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contestants[id]
	if !ok {
		return model.Contestant{}, ErrContestantNotFound
	}
	return c, nil
}

// ListContestants implements ContestantStore.
func (s *MemoryStore) ListContestants(_ context.Context, eventID string) ([]model.Contestant, error) {
	defer observeQuery("list_contestants", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byEvent[eventID]
	out := make([]model.Contestant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.contestants[id])
	}
	return out, nil
}

// UpdateContestantStatus implements ContestantStore.
func (s *MemoryStore) UpdateContestantStatus(_ context.Context, u model.StatusUpdate) (model.Contestant, error) {
	defer observeWrite("update_status", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Contestant{}, ErrClosed
	}
	c, ok := s.contestants[u.ContestantID]
	if !ok {
		s.mu.Unlock()
		return model.Contestant{}, ErrContestantNotFound
	}
	if !c.Active() {
		s.mu.Unlock()
		return model.Contestant{}, ErrAlreadyEliminated
	}
	u.Apply(&c)
	s.contestants[c.ID] = c
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionContestants, Op: OpUpdate, EventID: c.EventID, ContestantID: c.ID})
	return c, nil
}

// DeleteContestant implements ContestantStore. Score records are left for
// DeleteScoresForContestant.
func (s *MemoryStore) DeleteContestant(_ context.Context, id string) error {
	defer observeWrite("delete_contestant", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	c, ok := s.contestants[id]
	if !ok {
		s.mu.Unlock()
		return ErrContestantNotFound
	}
	delete(s.contestants, id)
	s.byEvent[c.EventID] = slices.DeleteFunc(s.byEvent[c.EventID], func(x string) bool { return x == id })
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionContestants, Op: OpDelete, EventID: c.EventID, ContestantID: id})
	return nil
}

// AppendScore implements ScoreStore.
func (s *MemoryStore) AppendScore(_ context.Context, r *model.ScoreRecord) error {
	defer observeWrite("append_score", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.events[r.EventID]; !ok {
		s.mu.Unlock()
		return ErrEventNotFound
	}
	if r.SubmissionID != "" {
		if _, dup := s.submissions[r.SubmissionID]; dup {
			s.mu.Unlock()
			return ErrDuplicateSubmission
		}
		s.submissions[r.SubmissionID] = struct{}{}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	s.nextScore++
	r.Seq = s.nextScore
	stored := *r
	stored.Scores = maps.Clone(r.Scores)
	s.scores[r.EventID] = append(s.scores[r.EventID], stored)
	total := s.countLocked()
	s.mu.Unlock()

	metrics.UpdateStoreScoreRecords(total)
	s.feed.Publish(Change{Collection: CollectionScores, Op: OpInsert, EventID: r.EventID, ContestantID: r.ContestantID, RecordID: r.ID})
	return nil
}

func (s *MemoryStore) countLocked() int {
	n := 0
	for _, recs := range s.scores {
		n += len(recs)
	}
	return n
}

// ListScores implements ScoreStore.
func (s *MemoryStore) ListScores(_ context.Context, eventID string) ([]model.ScoreRecord, error) {
	defer observeQuery("list_scores", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scores[eventID]), nil
}

// ListScoresForContestant implements ScoreStore.
func (s *MemoryStore) ListScoresForContestant(_ context.Context, contestantID string) ([]model.ScoreRecord, error) {
	defer observeQuery("list_scores_for_contestant", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScoreRecord
	for _, recs := range s.scores {
		for _, r := range recs {
			if r.ContestantID == contestantID {
				out = append(out, r)
			}
		}
	}
	slices.SortFunc(out, func(a, b model.ScoreRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

// DeleteScoresForContestant implements ScoreStore.
func (s *MemoryStore) DeleteScoresForContestant(_ context.Context, contestantID string) (int, error) {
	defer observeWrite("delete_scores", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	removed := 0
	var touched []string
	for eventID, recs := range s.scores {
		before := len(recs)
		recs = slices.DeleteFunc(recs, func(r model.ScoreRecord) bool { return r.ContestantID == contestantID })
		if n := before - len(recs); n > 0 {
			removed += n
			touched = append(touched, eventID)
			s.scores[eventID] = recs
		}
	}
	total := s.countLocked()
	s.mu.Unlock()

	metrics.UpdateStoreScoreRecords(total)
	for _, eventID := range touched {
		s.feed.Publish(Change{Collection: CollectionScores, Op: OpDelete, EventID: eventID, ContestantID: contestantID})
	}
	return removed, nil
}

// ApplyTransition implements RoundStore.
func (s *MemoryStore) ApplyTransition(_ context.Context, t model.Transition) (model.Event, error) {
	defer observeWrite("apply_transition", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Event{}, ErrClosed
	}
	e, ok := s.events[t.EventID]
	if !ok {
		s.mu.Unlock()
		return model.Event{}, ErrEventNotFound
	}
	if e.CurrentRound != t.From {
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("%w: event %s is in %q, not %q", ErrRoundConflict, e.ID, e.CurrentRound, t.From)
	}
	// Validate every update before writing any.
	for _, u := range t.Updates {
		c, ok := s.contestants[u.ContestantID]
		if !ok || c.EventID != t.EventID {
			s.mu.Unlock()
			return model.Event{}, fmt.Errorf("%w: %s", ErrContestantNotFound, u.ContestantID)
		}
	}
	// Eliminations are irreversible, including those made after the
	// transition was planned.
	for _, u := range t.Updates {
		c := s.contestants[u.ContestantID]
		if !c.Active() {
			continue
		}
		u.Apply(&c)
		s.contestants[c.ID] = c
	}
	e.CurrentRound = t.To
	e.UpdatedAt = s.now()
	s.events[e.ID] = e
	out := cloneEvent(e)
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionEvents, Op: OpUpdate, EventID: e.ID})
	return out, nil
}

// EliminateContestant implements RoundStore.
func (s *MemoryStore) EliminateContestant(_ context.Context, contestantID string, round model.Round) (model.Contestant, error) {
	defer observeWrite("eliminate", time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Contestant{}, ErrClosed
	}
	c, ok := s.contestants[contestantID]
	if !ok {
		s.mu.Unlock()
		return model.Contestant{}, ErrContestantNotFound
	}
	e, ok := s.events[c.EventID]
	if !ok {
		s.mu.Unlock()
		return model.Contestant{}, ErrEventNotFound
	}
	switch {
	case e.CurrentRound == model.RoundCompleted:
		s.mu.Unlock()
		return model.Contestant{}, fmt.Errorf("%w: event is completed", ErrInvalidTransition)
	case e.CurrentRound != round:
		s.mu.Unlock()
		return model.Contestant{}, fmt.Errorf("%w: event %s is in %q, not %q", ErrRoundConflict, e.ID, e.CurrentRound, round)
	case !c.Active():
		s.mu.Unlock()
		return model.Contestant{}, ErrAlreadyEliminated
	}
	c.Status = model.StatusEliminated
	c.EliminatedRound = round
	c.FinalRank = 0
	s.contestants[c.ID] = c
	s.mu.Unlock()

	s.feed.Publish(Change{Collection: CollectionContestants, Op: OpUpdate, EventID: c.EventID, ContestantID: c.ID})
	return c, nil
}
