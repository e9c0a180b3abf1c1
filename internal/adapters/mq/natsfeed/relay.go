package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Relay forwards the changes of a local store to NATS.
type Relay struct {
	nc     *nats.Conn
	source repository.Watcher
	prefix string
	log    logger.Logger
}

// NewRelay creates a relay from source to nc.
func NewRelay(nc *nats.Conn, source repository.Watcher, prefix string) *Relay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Relay{nc: nc, source: source, prefix: prefix, log: logger.Named("nats-relay")}
}

// Run publishes every change until ctx is done. It returns ErrSourceClosed
// if the source feed ends first.
func (r *Relay) Run(ctx context.Context) error {
	changes, err := r.source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch source: %w", err)
	}

	for c := range changes {
		data, err := json.Marshal(c)
		if err != nil {
			r.log.Error(ctx, "encode change", logger.Error(err))
			continue
		}
		if err := r.nc.Publish(Subject(r.prefix, c.Collection), data); err != nil {
			metrics.RecordErrorByComponent("nats_relay", "publish")
			r.log.Warn(ctx, "publish change",
				logger.String("collection", string(c.Collection)),
				logger.String("eventID", c.EventID),
				logger.Error(err))
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return ErrSourceClosed
}
