// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// EventDependencies defines the event administration operations.
type EventDependencies interface {
	CreateEvent(ctx context.Context, req types.CreateEventRequest) (types.EventResponse, error)
	GetEvent(ctx context.Context, eventID string) (types.EventResponse, error)
	UpdateCriteria(ctx context.Context, eventID string, req types.UpdateCriteriaRequest) (types.EventResponse, error)
	SetScoresLocked(ctx context.Context, eventID string, locked bool) (model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleCreate handles POST /v1/events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateEventRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := h.deps.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /v1/events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := h.deps.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUpdateCriteria handles PUT /v1/events/{id}/criteria.
func (h *EventsHandler) HandleUpdateCriteria(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req types.UpdateCriteriaRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := h.deps.UpdateCriteria(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLock handles PUT /v1/events/{id}/lock.
func (h *EventsHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req types.LockRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	ev, err := h.deps.SetScoresLocked(r.Context(), id, req.Locked)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
