package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/podium/internal/adapters/http/api"
	"github.com/okian/podium/internal/adapters/http/site"
	"github.com/okian/podium/internal/adapters/http/swagger"
	"github.com/okian/podium/internal/adapters/mq/natsfeed"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/adapters/repository/sqlstore"
	app "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// HTTP server timeout constants. Live streams clear their own write deadline.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "podium:", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the podium command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "podium",
		Short:         "Score aggregation and ranking engine for judged contests.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSimulateCmd())
	return root
}

// loadConfig loads configuration (defaults -> optional file -> env) and
// initializes logging from it.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PODIUM_ADDR")
	return cmd
}

// runServe serves the API until ctx is done.
func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	watcher, closeFeed, err := setupFeed(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer closeFeed()

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithWatcher(watcher),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxStreamClients(cfg.MaxStreamClients),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop(context.WithoutCancel(ctx))

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the configured score record store.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreBackend == config.StoreMemory {
		return repository.NewMemoryStore(), nil
	}
	store, err := sqlstore.Open(ctx, cfg.StoreBackend, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return store, nil
}

// setupFeed returns the change feed the projector follows. With the nats
// feed, local store changes are relayed to NATS and the projector consumes
// the subjects, which also carry changes written by other instances.
func setupFeed(ctx context.Context, cfg *config.Config, store repository.Store) (repository.Watcher, func(), error) {
	local, ok := store.(repository.Watcher)
	if !ok {
		return nil, nil, app.ErrNoWatcher
	}
	if cfg.FeedBackend != config.FeedNATS {
		return local, func() {}, nil
	}

	log := logger.Get()
	url := cfg.NATSURL
	var embedded *server.Server
	if cfg.NATSEmbedded {
		ns, err := natsfeed.StartEmbedded()
		if err != nil {
			return nil, nil, err
		}
		embedded = ns
		url = ns.ClientURL()
		log.Info(ctx, "embedded nats server started", logger.String("url", url))
	}

	shutdown := func(conns ...*nats.Conn) {
		for _, nc := range conns {
			nc.Close()
		}
		if embedded != nil {
			embedded.Shutdown()
		}
	}

	pub, err := natsfeed.Connect(url, "podium-relay")
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	sub, err := natsfeed.Connect(url, "podium-projector")
	if err != nil {
		shutdown(pub)
		return nil, nil, err
	}

	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	relay := natsfeed.NewRelay(pub, local, cfg.NATSSubjectPrefix)
	go func() {
		defer close(done)
		if err := relay.Run(relayCtx); err != nil {
			log.Error(relayCtx, "nats relay stopped", logger.Error(err))
		}
	}()

	log.Info(ctx, "following changes over nats",
		logger.String("url", url), logger.String("prefix", cfg.NATSSubjectPrefix))
	return natsfeed.NewWatcher(sub, cfg.NATSSubjectPrefix, 0), func() {
		cancel()
		<-done
		_ = pub.Flush()
		shutdown(pub, sub)
	}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the service gauges from its stats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics. GetStats refreshes the
// tracked event and worker gauges itself.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if connected, ok := stats["feedConnected"].(bool); ok {
		metrics.UpdateFeedConnected(connected)
	}
}
