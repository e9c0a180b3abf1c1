// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/projector"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// keepAliveInterval paces SSE comment frames on idle streams.
const keepAliveInterval = 15 * time.Second

// LiveDependencies defines the live view operations.
type LiveDependencies interface {
	LiveView(ctx context.Context, eventID string) (types.LiveView, error)
	SubscribeLive(ctx context.Context, eventID string) (<-chan types.LiveView, error)
	ReconnectLive(ctx context.Context) error
}

// LiveHandler serves projected standings.
type LiveHandler struct {
	deps LiveDependencies
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(deps LiveDependencies) *LiveHandler {
	return &LiveHandler{deps: deps}
}

// staleResponse carries the last known view alongside the error.
type staleResponse struct {
	errorResponse
	View types.LiveView `json:"view"`
}

// HandleView handles GET /v1/events/{id}/live.
func (h *LiveHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := h.deps.LiveView(r.Context(), id)
	if errors.Is(err, projector.ErrDisconnected) {
		status, code := classify(err)
		writeJSON(w, status, staleResponse{
			errorResponse: errorResponse{Code: code, Message: err.Error()},
			View:          view,
		})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleStream handles GET /v1/events/{id}/live/stream as server-sent
// events. Each frame is a full view tagged with its version.
func (h *LiveHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	views, err := h.deps.SubscribeLive(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Get().Warn(ctx, "stream flush unsupported", logger.Error(err))
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}
			if err := writeEvent(w, view); err != nil {
				metrics.RecordErrorByComponent("http", "stream_write")
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, view types.LiveView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: standings\nid: %d\ndata: %s\n\n", view.Version, data)
	return err
}

// HandleReconnect handles POST /v1/live/reconnect.
func (h *LiveHandler) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ReconnectLive(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconnected"})
}
