// Package projector keeps live standings for tracked events. It follows the
// store change feed, schedules recompute jobs on a bounded queue and
// publishes a fresh view to subscribers after every job.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/ranking"
	"github.com/okian/podium/internal/domain/scoring"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const (
	defaultQueueSize      = 10000
	defaultMaxSubscribers = 256
)

// Reader is the part of the store the projector reads from.
type Reader interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetContestant(ctx context.Context, id string) (model.Contestant, error)
	ListContestants(ctx context.Context, eventID string) ([]model.Contestant, error)
	ListScores(ctx context.Context, eventID string) ([]model.ScoreRecord, error)
	ListScoresForContestant(ctx context.Context, contestantID string) ([]model.ScoreRecord, error)
}

// Projector maintains live views. It is safe for concurrent use.
type Projector struct {
	reader  Reader
	watcher repository.Watcher
	now     func() time.Time
	log     logger.Logger

	queueSize      int
	workers        int
	maxSubscribers int

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	connected   atomic.Bool
	subscribers atomic.Int64

	mu        sync.RWMutex
	runCtx    context.Context
	events    map[string]*eventState
	stopWatch context.CancelFunc
}

// New creates a projector reading from reader and following watcher.
func New(reader Reader, watcher repository.Watcher, opts ...Option) *Projector {
	p := &Projector{
		reader:         reader,
		watcher:        watcher,
		now:            func() time.Time { return time.Now().UTC() },
		log:            logger.Named("projector"),
		queueSize:      defaultQueueSize,
		maxSubscribers: defaultMaxSubscribers,
		events:         make(map[string]*eventState),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to the change feed and starts the workers. It returns
// once the feed is attached.
func (p *Projector) Start(ctx context.Context) error {
	p.queue = queue.NewInMemoryQueue(queue.WithCapacity(p.queueSize))
	p.pool = worker.NewPool(p.workers, p.queue, worker.ProcessorFunc(p.process))
	p.pool.Start(ctx)

	p.mu.Lock()
	p.runCtx = ctx
	p.mu.Unlock()

	return p.attach()
}

// Shutdown detaches from the feed, drains pending jobs and closes every
// subscription.
func (p *Projector) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopWatch != nil {
		p.stopWatch()
	}
	states := p.snapshotLocked()
	p.mu.Unlock()

	var err error
	if p.pool != nil {
		err = p.pool.Shutdown(ctx)
	}
	for _, st := range states {
		st.closeSubscribers()
	}
	p.connected.Store(false)
	return err
}

// Connected reports whether the change feed is attached.
func (p *Projector) Connected() bool { return p.connected.Load() }

// attach opens a new watch and starts routing its changes.
func (p *Projector) attach() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCtx == nil {
		return ErrNotStarted
	}
	if p.stopWatch != nil {
		p.stopWatch()
	}

	watchCtx, cancel := context.WithCancel(p.runCtx)
	changes, err := p.watcher.Watch(watchCtx,
		repository.CollectionEvents, repository.CollectionContestants, repository.CollectionScores)
	if err != nil {
		cancel()
		return fmt.Errorf("watch changes: %w", err)
	}
	p.stopWatch = cancel
	p.connected.Store(true)
	metrics.UpdateFeedConnected(true)

	go p.consume(watchCtx, changes)
	return nil
}

func (p *Projector) consume(ctx context.Context, changes <-chan repository.Change) {
	for c := range changes {
		p.route(ctx, c)
	}
	if ctx.Err() != nil {
		return
	}

	p.log.Warn(ctx, "change feed closed unexpectedly")
	metrics.RecordFeedDisconnect()
	p.disconnect(ctx)
}

// route turns a change into a recompute job for a tracked event.
func (p *Projector) route(ctx context.Context, c repository.Change) {
	st := p.state(c.EventID)
	if st == nil {
		return
	}

	job := queue.Job{EventID: c.EventID, Kind: queue.KindRefresh}
	if c.Collection == repository.CollectionScores && c.ContestantID != "" {
		job.ContestantID = c.ContestantID
		job.Kind = queue.KindContestant
	}
	if !p.queue.Enqueue(ctx, job) {
		// The next job or read of this event does a full refresh instead.
		metrics.RecordErrorByComponent("projector", "queue_full")
		if st.stale.Swap(true) {
			return
		}
		p.log.Warn(ctx, "recompute queue full, event marked stale", logger.String("eventID", c.EventID))
		st.mu.Lock()
		p.publishLocked(ctx, st, false)
		st.mu.Unlock()
	}
}

// current reports whether st's view reflects the store.
func (p *Projector) current(st *eventState) bool {
	return p.connected.Load() && !st.stale.Load()
}

// Stale returns the number of tracked events whose standings could not be
// recomputed.
func (p *Projector) Stale() int {
	n := 0
	for _, st := range p.snapshot() {
		if st.stale.Load() {
			n++
		}
	}
	return n
}

// Pending returns the number of queued recompute jobs.
func (p *Projector) Pending() int {
	if p.queue == nil {
		return 0
	}
	return p.queue.Len(context.Background())
}

// Indexed returns the number of contestants indexed across tracked events.
func (p *Projector) Indexed() int {
	n := 0
	for _, st := range p.snapshot() {
		n += st.index.Len()
	}
	return n
}

func (p *Projector) disconnect(ctx context.Context) {
	p.connected.Store(false)
	metrics.UpdateFeedConnected(false)

	for _, st := range p.snapshot() {
		st.mu.Lock()
		p.publishLocked(ctx, st, false)
		st.mu.Unlock()
	}
}

// Reconnect reattaches to the change feed and refreshes every tracked event.
func (p *Projector) Reconnect(ctx context.Context) error {
	if err := p.attach(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range p.snapshot() {
		g.Go(func() error {
			st.mu.Lock()
			defer st.mu.Unlock()
			st.stale.Store(false)
			if err := p.refreshLocked(gctx, st); err != nil {
				st.stale.Store(true)
				p.publishLocked(gctx, st, false)
				return fmt.Errorf("refresh %s: %w", st.eventID, err)
			}
			p.publishLocked(gctx, st, p.current(st))
			return nil
		})
	}
	return g.Wait()
}

// Track starts projecting eventID. Tracking an event twice is a no-op.
func (p *Projector) Track(ctx context.Context, eventID string) error {
	p.mu.Lock()
	if _, ok := p.events[eventID]; ok {
		p.mu.Unlock()
		return nil
	}
	// Register before loading so changes made during the load are routed.
	st := newEventState(eventID)
	st.mu.Lock()
	p.events[eventID] = st
	tracked := len(p.events)
	p.mu.Unlock()
	defer st.mu.Unlock()

	if err := p.refreshLocked(ctx, st); err != nil {
		p.mu.Lock()
		delete(p.events, eventID)
		p.mu.Unlock()
		return err
	}
	metrics.UpdateTrackedEvents(tracked)
	p.publishLocked(ctx, st, p.current(st))
	return nil
}

// Tracked returns the ids of tracked events.
func (p *Projector) Tracked() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.events))
	for id := range p.events {
		out = append(out, id)
	}
	return out
}

// View returns the current live view of eventID, tracking it on first use.
// While disconnected, or while the event's standings could not be
// recomputed, it returns the last known view with ErrDisconnected. A stale
// event is refreshed once before giving up.
func (p *Projector) View(ctx context.Context, eventID string) (types.LiveView, error) {
	if err := p.Track(ctx, eventID); err != nil {
		return types.LiveView{}, err
	}
	st := p.state(eventID)
	if st == nil {
		return types.LiveView{}, repository.ErrEventNotFound
	}

	st.mu.Lock()
	if st.stale.Load() && p.connected.Load() {
		p.healLocked(ctx, st)
	}
	view := st.view
	st.mu.Unlock()
	if view.Version == 0 {
		return types.LiveView{}, repository.ErrEventNotFound
	}

	if !p.connected.Load() {
		view.Connected = false
		return view, ErrDisconnected
	}
	if view.Stale {
		return view, fmt.Errorf("%w: standings of event %s could not be recomputed", ErrDisconnected, eventID)
	}
	return view, nil
}

// healLocked retries the full refresh of a stale event.
func (p *Projector) healLocked(ctx context.Context, st *eventState) {
	st.stale.Store(false)
	if err := p.refreshLocked(ctx, st); err != nil {
		st.stale.Store(true)
		p.log.Warn(ctx, "stale event refresh failed", logger.String("eventID", st.eventID), logger.Error(err))
		return
	}
	p.publishLocked(ctx, st, p.current(st))
}

// Subscribe streams the views of eventID until ctx is done. The current view
// is delivered first. A slow subscriber only sees the latest view.
func (p *Projector) Subscribe(ctx context.Context, eventID string) (<-chan types.LiveView, error) {
	if n := p.subscribers.Add(1); n > int64(p.maxSubscribers) {
		p.subscribers.Add(-1)
		return nil, ErrTooManySubscribers
	}
	if err := p.Track(ctx, eventID); err != nil {
		p.subscribers.Add(-1)
		return nil, err
	}
	st := p.state(eventID)
	if st == nil {
		p.subscribers.Add(-1)
		return nil, repository.ErrEventNotFound
	}

	ch := make(chan types.LiveView, 1)
	st.mu.Lock()
	view := st.view
	view.Connected = p.current(st)
	ch <- view
	st.subs[ch] = struct{}{}
	st.mu.Unlock()
	metrics.UpdateStreamClients(int(p.subscribers.Load()))

	context.AfterFunc(ctx, func() {
		st.mu.Lock()
		if _, ok := st.subs[ch]; ok {
			delete(st.subs, ch)
			close(ch)
		}
		st.mu.Unlock()
		metrics.UpdateStreamClients(int(p.subscribers.Add(-1)))
	})
	return ch, nil
}

func (p *Projector) state(eventID string) *eventState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.events[eventID]
}

func (p *Projector) snapshot() []*eventState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Projector) snapshotLocked() []*eventState {
	out := make([]*eventState, 0, len(p.events))
	for _, st := range p.events {
		out = append(out, st)
	}
	return out
}

// process runs one recompute job on a worker.
func (p *Projector) process(ctx context.Context, j queue.Job) error {
	st := p.state(j.EventID)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var err error
	if stale := st.stale.Swap(false); stale || j.Kind == queue.KindRefresh {
		err = p.refreshLocked(ctx, st)
	} else {
		err = p.recomputeLocked(ctx, st, j.ContestantID)
	}
	if errors.Is(err, repository.ErrEventNotFound) {
		p.untrack(j.EventID)
		return nil
	}
	if err != nil {
		// Keep serving the last view, flagged, until a refresh succeeds.
		st.stale.Store(true)
		p.publishLocked(ctx, st, false)
		return err
	}
	p.publishLocked(ctx, st, p.current(st))
	return nil
}

func (p *Projector) untrack(eventID string) {
	p.mu.Lock()
	st := p.events[eventID]
	delete(p.events, eventID)
	tracked := len(p.events)
	p.mu.Unlock()
	metrics.UpdateTrackedEvents(tracked)
	if st != nil {
		go st.closeSubscribers()
	}
}

// refreshLocked reloads the event and recomputes every contestant.
func (p *Projector) refreshLocked(ctx context.Context, st *eventState) error {
	start := time.Now()
	defer func() { metrics.RecordAggregationLatency(metrics.SinceMs(start)) }()

	event, err := p.reader.GetEvent(ctx, st.eventID)
	if err != nil {
		return err
	}
	contestants, err := p.reader.ListContestants(ctx, st.eventID)
	if err != nil {
		return fmt.Errorf("list contestants: %w", err)
	}
	records, err := p.reader.ListScores(ctx, st.eventID)
	if err != nil {
		return fmt.Errorf("list scores: %w", err)
	}

	composites := scoring.AggregateAll(records, contestants, event.Criteria)
	entries := make([]repository.IndexEntry, len(contestants))
	st.contestants = make(map[string]model.Contestant, len(contestants))
	st.composites = make(map[string]scoring.Composite, len(contestants))
	for i, c := range contestants {
		st.contestants[c.ID] = c
		st.composites[c.ID] = composites[i]
		entries[i] = repository.IndexEntry{ContestantID: c.ID, Seq: c.Seq, Total: composites[i].TotalWeighted}
	}
	st.index.Reset(entries)
	st.event = event
	st.warnings = scoring.CheckWeights(event.Criteria)
	return nil
}

// recomputeLocked re-aggregates one contestant and moves it in the index.
func (p *Projector) recomputeLocked(ctx context.Context, st *eventState, contestantID string) error {
	start := time.Now()
	defer func() { metrics.RecordAggregationLatency(metrics.SinceMs(start)) }()

	c, known := st.contestants[contestantID]
	if !known {
		fetched, err := p.reader.GetContestant(ctx, contestantID)
		if errors.Is(err, repository.ErrContestantNotFound) {
			st.index.Remove(contestantID)
			delete(st.composites, contestantID)
			return nil
		}
		if err != nil {
			return err
		}
		if fetched.EventID != st.eventID {
			return nil
		}
		c = fetched
		st.contestants[c.ID] = c
	}

	records, err := p.reader.ListScoresForContestant(ctx, contestantID)
	if err != nil {
		return fmt.Errorf("list scores of %s: %w", contestantID, err)
	}
	comp := scoring.Aggregate(contestantID, st.eventID, records, st.event.Criteria)
	st.composites[contestantID] = comp
	st.index.Upsert(repository.IndexEntry{ContestantID: contestantID, Seq: c.Seq, Total: comp.TotalWeighted})
	return nil
}

// publishLocked rebuilds the view from the index and fans it out.
func (p *Projector) publishLocked(ctx context.Context, st *eventState, connected bool) {
	entries := st.index.All()
	standings := make([]ranking.Standing, 0, len(entries))
	for _, e := range entries {
		c, ok := st.contestants[e.ContestantID]
		if !ok {
			continue
		}
		standings = append(standings, ranking.Standing{Contestant: c, Composite: st.composites[e.ContestantID]})
	}

	st.version++
	st.view = types.LiveView{
		Standings: types.NewStandings(&st.event, ranking.Rank(standings), st.warnings),
		Connected: connected,
		Stale:     st.stale.Load(),
		UpdatedAt: p.now(),
		Version:   st.version,
	}
	metrics.RecordStandingsPublished()

	for ch := range st.subs {
		select {
		case ch <- st.view:
		default:
			// Replace the undelivered view with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st.view:
			default:
				p.log.Debug(ctx, "subscriber busy, view skipped", logger.String("eventID", st.eventID))
			}
		}
	}
}

type eventState struct {
	eventID string
	stale   atomic.Bool

	mu          sync.Mutex
	event       model.Event
	contestants map[string]model.Contestant
	composites  map[string]scoring.Composite
	warnings    []scoring.Warning
	index       *repository.StandingsIndex
	view        types.LiveView
	version     uint64
	subs        map[chan types.LiveView]struct{}
}

func newEventState(eventID string) *eventState {
	return &eventState{
		eventID:     eventID,
		contestants: make(map[string]model.Contestant),
		composites:  make(map[string]scoring.Composite),
		index:       repository.NewStandingsIndex(),
		subs:        make(map[chan types.LiveView]struct{}),
	}
}

func (st *eventState) closeSubscribers() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for ch := range st.subs {
		delete(st.subs, ch)
		close(ch)
	}
}
