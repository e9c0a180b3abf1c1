// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and PODIUM_ env vars over the defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
)

// Feed backends.
const (
	FeedLocal = "local"
	FeedNATS  = "nats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the projector recompute queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the submission id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreBackend is one of memory, sqlite, postgres, mysql.
	StoreBackend string `koanf:"store_backend"`

	// StoreDSN is the driver specific data source name.
	StoreDSN string `koanf:"store_dsn"`

	// FeedBackend is local (in-process) or nats.
	FeedBackend string `koanf:"feed_backend"`

	// NATSURL is the server the nats feed connects to.
	NATSURL string `koanf:"nats_url"`

	// NATSSubjectPrefix prefixes every change notification subject.
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// NATSEmbedded starts an in-process nats server for development.
	NATSEmbedded bool `koanf:"nats_embedded"`

	// MaxStreamClients caps concurrent live stream subscribers.
	MaxStreamClients int `koanf:"max_stream_clients"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        100_000,
		StoreBackend:      StoreMemory,
		StoreDSN:          "",
		FeedBackend:       FeedLocal,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSSubjectPrefix: "podium.changes",
		NATSEmbedded:      false,
		MaxStreamClients:  256,
	}
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.DedupeSize <= 0 {
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	}
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite, StorePostgres, StoreMySQL:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreBackend)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	c.FeedBackend = strings.ToLower(c.FeedBackend)
	switch c.FeedBackend {
	case FeedLocal:
	case FeedNATS:
		if c.NATSURL == "" && !c.NATSEmbedded {
			return fmt.Errorf("%w: nats_url is required for the nats feed", ErrInvalidConfig)
		}
		if c.NATSSubjectPrefix == "" {
			return fmt.Errorf("%w: nats_subject_prefix must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed_backend %q", ErrInvalidConfig, c.FeedBackend)
	}
	if c.MaxStreamClients < 0 {
		return fmt.Errorf("%w: max_stream_clients must not be negative", ErrInvalidConfig)
	}
	return nil
}
