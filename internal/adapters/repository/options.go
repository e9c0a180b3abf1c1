package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWatchBuffer sets the per-watcher change buffer.
func WithWatchBuffer(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.watchBuffer = n
		}
	}
}
