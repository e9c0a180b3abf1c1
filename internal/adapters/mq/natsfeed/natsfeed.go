// Package natsfeed carries store change notifications between processes
// over NATS core subjects named <prefix>.<collection>.
package natsfeed

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/okian/podium/internal/adapters/repository"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "podium.changes"

const (
	readyTimeout  = 5 * time.Second
	reconnectWait = time.Second
)

// Sentinel errors.
var (
	ErrSourceClosed = errors.New("change source closed")
	ErrNotReady     = errors.New("embedded nats server not ready")
)

// Subject returns the subject changes of collection are published on.
func Subject(prefix string, c repository.Collection) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + string(c)
}

// StartEmbedded runs an in-process NATS server on a random local port.
func StartEmbedded() (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, ErrNotReady
	}
	return ns, nil
}

// Connect dials url and keeps reconnecting forever.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
