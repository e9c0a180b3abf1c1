// Package dedupe tracks keys that were already seen. It backs submission id
// idempotency and the coalescing of pending recompute jobs.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the next SeenAndRecord reports it as new.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// entry is a node of the insertion ordered list. head is the newest key.
type entry struct {
	key        string
	prev, next *entry
}

// inMemoryDeduper keeps keys in a map plus a doubly linked list so that the
// oldest key can be evicted in O(1) once maxSize is reached. With maxSize <= 0
// it is unbounded and the list is not maintained.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*entry
	head    *entry
	tail    *entry
	maxSize int
	size    atomic.Int64
	pool    sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*entry)
	d.pool.New = func() any { return &entry{} }
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[key] = nil
		d.size.Add(1)
		return false
	}

	if len(d.seen) >= d.maxSize {
		d.remove(d.tail)
	}
	e := d.pool.Get().(*entry)
	e.key = key
	e.next = d.head
	if d.head != nil {
		d.head.prev = e
	}
	d.head = e
	if d.tail == nil {
		d.tail = e
	}
	d.seen[key] = e
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.seen[key]
	if !ok {
		return
	}
	if e == nil {
		delete(d.seen, key)
		d.size.Add(-1)
		return
	}
	d.remove(e)
}

// remove unlinks e and drops its key. Caller holds d.mu.
func (d *inMemoryDeduper) remove(e *entry) {
	if e == nil {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.tail = e.prev
	}
	delete(d.seen, e.key)
	d.size.Add(-1)

	*e = entry{}
	d.pool.Put(e)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
