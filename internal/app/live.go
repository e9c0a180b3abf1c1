package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/projector"
)

// LiveView returns the projected standings of an event. While the change
// feed is down the last known view is returned with projector.ErrDisconnected.
func (s *Service) LiveView(ctx context.Context, eventID string) (types.LiveView, error) {
	p, err := s.live()
	if err != nil {
		return types.LiveView{}, err
	}
	return p.View(ctx, eventID)
}

// SubscribeLive streams projected views of an event until ctx is done.
func (s *Service) SubscribeLive(ctx context.Context, eventID string) (<-chan types.LiveView, error) {
	p, err := s.live()
	if err != nil {
		return nil, err
	}
	return p.Subscribe(ctx, eventID)
}

// ReconnectLive reattaches the projector to the change feed and refreshes
// every tracked event.
func (s *Service) ReconnectLive(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "ReconnectLive")
	defer func() { endSpan(span, err) }()

	p, err := s.live()
	if err != nil {
		return err
	}
	err = p.Reconnect(ctx)
	span.SetAttributes(attribute.Int("tracked", len(p.Tracked())))
	if err == nil {
		s.logger.Info(ctx, "live projector reconnected")
	}
	return err
}

// Health reports whether the service is started, following the change feed
// and keeping every tracked event current.
func (s *Service) Health(_ context.Context) error {
	p, err := s.live()
	if err != nil {
		return err
	}
	if !p.Connected() {
		return projector.ErrDisconnected
	}
	if n := p.Stale(); n > 0 {
		return fmt.Errorf("%w: %d events have stale standings", projector.ErrDisconnected, n)
	}
	return nil
}
