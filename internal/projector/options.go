package projector

import "time"

// Option applies a configuration option to the Projector.
type Option func(*Projector)

// WithQueueSize bounds the recompute job queue.
func WithQueueSize(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithWorkers sets the number of recompute workers.
func WithWorkers(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxSubscribers caps concurrent live view subscriptions.
func WithMaxSubscribers(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.maxSubscribers = n
		}
	}
}

// WithClock overrides the time source used for view timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		if now != nil {
			p.now = now
		}
	}
}
