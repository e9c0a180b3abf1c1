// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/projector"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const tracerName = "github.com/okian/podium/internal/app"

var validate = validator.New()

// Service is the engine facade used by the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	watcher   repository.Watcher
	deduper   dedupe.Deduper
	projector *projector.Projector
	standings singleflight.Group
	tracer    trace.Tracer

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	maxStreamClients int
	now              func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the document store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWatcher sets the change feed followed by the live projector. By
// default the store's own feed is used.
func WithWatcher(w repository.Watcher) Option {
	return func(s *Service) {
		if w != nil {
			s.watcher = w
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the submission id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxStreamClients caps concurrent live view subscriptions.
func WithMaxStreamClients(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxStreamClients = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for score timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		dedupeSize:       100_000,
		maxStreamClients: 256,
		now:              func() time.Time { return time.Now().UTC() },
		tracer:           otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the store, the submission cache and the live projector.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting scoring service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.watcher == nil {
		w, ok := s.store.(repository.Watcher)
		if !ok {
			return ErrNoWatcher
		}
		s.watcher = w
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.projector = projector.New(s.store, s.watcher,
		projector.WithWorkers(s.workerCount),
		projector.WithQueueSize(s.queueSize),
		projector.WithMaxSubscribers(s.maxStreamClients),
	)
	if err := s.projector.Start(ctx); err != nil {
		return err
	}

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.String("store", s.backendName()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the projector and closes the store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping scoring service...")

	if err := s.projector.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "projector shutdown incomplete", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

// ready returns the store once the service is started.
func (s *Service) ready() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) live() (*projector.Projector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.projector, nil
}

func (s *Service) backendName() string {
	if b, ok := s.store.(interface{ Backend() string }); ok {
		return b.Backend()
	}
	return "memory"
}

// startSpan opens a span for a service operation.
func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "Service."+name)
	span.SetAttributes(attrs...)
	return ctx, span
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"maxStreamClients": s.maxStreamClients,
	}

	if s.started {
		tracked := len(s.projector.Tracked())
		stats["store"] = s.backendName()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["trackedEvents"] = tracked
		stats["feedConnected"] = s.projector.Connected()
		stats["staleEvents"] = s.projector.Stale()
		stats["pendingRecomputes"] = s.projector.Pending()
		stats["indexedContestants"] = s.projector.Indexed()

		metrics.UpdateTrackedEvents(tracked)
		metrics.UpdateWorkerActiveCount(s.workerCount)
	}

	return stats
}

// Size returns the current number of entries in the submission cache.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// isNotFound reports store misses, which are not worth an error log.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
