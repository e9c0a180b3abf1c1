// Package worker runs standings recompute jobs. Jobs are sharded by event id
// so the jobs of one event are processed in order by a single worker.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Default worker configuration constants.
const (
	shardBuffer         = 64
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Processor recomputes standings for one job.
type Processor interface {
	Process(ctx context.Context, j Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, j Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			// Failures are logged and counted; the next job still runs.
			_ = w.processJob(ctx, j)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processJob(ctx context.Context, j Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(metrics.SinceMs(start))
	}()

	metrics.RecordRecomputeJob(string(j.Kind))
	if err := w.processor.Process(ctx, j); err != nil {
		metrics.RecordRecomputeError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "recompute_error")
		w.logger.Error(ctx, "recompute failed",
			logger.String("eventID", j.EventID),
			logger.String("contestantID", j.ContestantID),
			logger.String("kind", string(j.Kind)),
			logger.Error(err),
		)
		return fmt.Errorf("recompute %s: %w", j.Key(), err)
	}
	return nil
}

// shard is the queue of a single worker.
type shard chan Job

func (s shard) Dequeue(context.Context) <-chan Job { return s }

// Pool routes jobs from one queue to a fixed set of workers.
type Pool struct {
	workers   []*InMemoryWorker
	shards    []shard
	queue     Queue
	processor Processor

	dispatched chan struct{}
	logger     logger.Logger
}

// NewPool creates a new worker pool. A workerCount below 1 uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:    make([]*InMemoryWorker, workerCount),
		shards:     make([]shard, workerCount),
		queue:      q,
		processor:  p,
		dispatched: make(chan struct{}),
		logger:     logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		pool.shards[i] = make(shard, shardBuffer)
		pool.workers[i] = NewInMemoryWorker(pool.shards[i], p, WithName("worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// ShardFor returns the index of the worker that handles eventID.
func (p *Pool) ShardFor(eventID string) int {
	return int(xxhash.Sum64String(eventID) % uint64(len(p.shards)))
}

// Start starts the dispatcher and all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
}

func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.dispatched)
	defer func() {
		for _, s := range p.shards {
			close(s)
		}
	}()

	for j := range p.queue.Dequeue(ctx) {
		select {
		case p.shards[p.ShardFor(j.EventID)] <- j:
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-p.dispatched:
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "dispatcher shutdown timed out")
	}

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(ctx)
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
