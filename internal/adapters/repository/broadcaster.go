package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const defaultWatchBuffer = 1024

type subscriber struct {
	ch          chan Change
	collections []Collection
}

func (s *subscriber) wants(c Collection) bool {
	return len(s.collections) == 0 || slices.Contains(s.collections, c)
}

// Broadcaster fans store changes out to watchers. Publish never blocks: a
// watcher whose buffer is full is dropped and its channel closed, which it
// observes as a feed failure.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster whose watch channels hold buffer changes.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultWatchBuffer
	}
	return &Broadcaster{subs: make(map[*subscriber]struct{}), buffer: buffer}
}

// Watch implements Watcher.
func (b *Broadcaster) Watch(ctx context.Context, collections ...Collection) (<-chan Change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &subscriber{ch: make(chan Change, b.buffer), collections: slices.Clone(collections)}
	b.subs[s] = struct{}{}

	context.AfterFunc(ctx, func() { b.drop(s) })
	return s.ch, nil
}

// Publish delivers c to every interested watcher.
func (b *Broadcaster) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.wants(c.Collection) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			logger.Get().Warn(context.Background(), "watcher too slow, dropping",
				logger.String("collection", string(c.Collection)))
			metrics.RecordErrorByComponent("broadcaster", "slow_watcher")
			b.dropLocked(s)
		}
	}
}

// Watchers returns the number of live watchers.
func (b *Broadcaster) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every watch channel and rejects new watchers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		b.dropLocked(s)
	}
}

func (b *Broadcaster) drop(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(s)
}

func (b *Broadcaster) dropLocked(s *subscriber) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}
