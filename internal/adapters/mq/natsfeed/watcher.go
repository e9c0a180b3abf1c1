package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const defaultBuffer = 1024

// Watcher implements repository.Watcher on NATS subscriptions. A lost
// connection or a full buffer closes the watch channel, since changes may
// have been missed.
type Watcher struct {
	nc     *nats.Conn
	prefix string
	buffer int
	log    logger.Logger

	mu      sync.Mutex
	watches map[*watch]struct{}
}

var _ repository.Watcher = (*Watcher)(nil)

type watch struct {
	mu     sync.Mutex
	ch     chan repository.Change
	subs   []*nats.Subscription
	closed bool
}

func (w *watch) send(c repository.Change) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return true
	}
	select {
	case w.ch <- c:
		return true
	default:
		return false
	}
}

func (w *watch) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, s := range w.subs {
		_ = s.Unsubscribe()
	}
	close(w.ch)
}

// NewWatcher creates a watcher on nc. It installs the connection's
// disconnect and closed handlers.
func NewWatcher(nc *nats.Conn, prefix string, buffer int) *Watcher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	w := &Watcher{
		nc:      nc,
		prefix:  prefix,
		buffer:  buffer,
		log:     logger.Named("nats-watcher"),
		watches: make(map[*watch]struct{}),
	}

	nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		metrics.RecordFeedDisconnect()
		metrics.UpdateFeedConnected(false)
		w.log.Warn(context.Background(), "nats disconnected", logger.Error(err))
		w.failAll()
	})
	nc.SetReconnectHandler(func(_ *nats.Conn) {
		metrics.UpdateFeedConnected(true)
		w.log.Info(context.Background(), "nats reconnected")
	})
	nc.SetClosedHandler(func(_ *nats.Conn) {
		metrics.UpdateFeedConnected(false)
		w.failAll()
	})
	metrics.UpdateFeedConnected(nc.IsConnected())
	return w
}

// Watch implements repository.Watcher.
func (w *Watcher) Watch(ctx context.Context, collections ...repository.Collection) (<-chan repository.Change, error) {
	if w.nc.IsClosed() {
		return nil, repository.ErrClosed
	}

	subjects := make([]string, 0, len(collections))
	for _, c := range collections {
		subjects = append(subjects, Subject(w.prefix, c))
	}
	if len(subjects) == 0 {
		subjects = append(subjects, w.prefix+".*")
	}

	wt := &watch{ch: make(chan repository.Change, w.buffer)}
	for _, subject := range subjects {
		sub, err := w.nc.Subscribe(subject, func(m *nats.Msg) {
			var c repository.Change
			if err := json.Unmarshal(m.Data, &c); err != nil {
				w.log.Warn(context.Background(), "drop malformed change",
					logger.String("subject", m.Subject), logger.Error(err))
				return
			}
			if !wt.send(c) {
				w.log.Warn(context.Background(), "watcher too slow, dropping")
				metrics.RecordErrorByComponent("nats_watcher", "slow_watcher")
				w.remove(wt)
			}
		})
		if err != nil {
			wt.close()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		wt.subs = append(wt.subs, sub)
	}

	w.mu.Lock()
	w.watches[wt] = struct{}{}
	w.mu.Unlock()

	context.AfterFunc(ctx, func() { w.remove(wt) })
	return wt.ch, nil
}

// Watches returns the number of live watches.
func (w *Watcher) Watches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

func (w *Watcher) remove(wt *watch) {
	w.mu.Lock()
	delete(w.watches, wt)
	w.mu.Unlock()
	wt.close()
}

func (w *Watcher) failAll() {
	w.mu.Lock()
	all := w.watches
	w.watches = make(map[*watch]struct{})
	w.mu.Unlock()
	for wt := range all {
		wt.close()
	}
}
