// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// ContestantDependencies defines the contestant operations.
type ContestantDependencies interface {
	RegisterContestant(ctx context.Context, eventID string, req types.RegisterContestantRequest) (model.Contestant, error)
	ListContestants(ctx context.Context, eventID string) ([]model.Contestant, error)
	DeleteContestant(ctx context.Context, contestantID string) (types.DeleteResult, error)
	EliminateContestant(ctx context.Context, contestantID string, currentRound model.Round) (model.Contestant, error)
	OverrideStatus(ctx context.Context, contestantID string, u model.StatusUpdate) (model.Contestant, error)
	GetComposite(ctx context.Context, contestantID string) (types.Composite, error)
}

// ContestantsHandler handles contestant requests.
type ContestantsHandler struct {
	deps ContestantDependencies
}

// NewContestantsHandler creates a new contestants handler.
func NewContestantsHandler(deps ContestantDependencies) *ContestantsHandler {
	return &ContestantsHandler{deps: deps}
}

// HandleRegister handles POST /v1/events/{id}/contestants.
func (h *ContestantsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req types.RegisterContestantRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	c, err := h.deps.RegisterContestant(r.Context(), eventID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList handles GET /v1/events/{id}/contestants.
func (h *ContestantsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	list, err := h.deps.ListContestants(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelete handles DELETE /v1/contestants/{id}.
func (h *ContestantsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.DeleteContestant(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleEliminate handles POST /v1/contestants/{id}/eliminate.
func (h *ContestantsHandler) HandleEliminate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req types.EliminateRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	c, err := h.deps.EliminateContestant(r.Context(), id, req.CurrentRound)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleStatus handles PUT /v1/contestants/{id}/status.
func (h *ContestantsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var u model.StatusUpdate
	if err := decode(w, r, &u); err != nil {
		writeServiceError(w, err)
		return
	}
	c, err := h.deps.OverrideStatus(r.Context(), id, u)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleComposite handles GET /v1/contestants/{id}/composite.
func (h *ContestantsHandler) HandleComposite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	comp, err := h.deps.GetComposite(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}
