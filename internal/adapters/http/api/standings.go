// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// StandingsDependencies defines ranking and round operations.
type StandingsDependencies interface {
	GetRankedContestants(ctx context.Context, eventID string) (types.Standings, error)
	AdvanceRound(ctx context.Context, eventID string) (model.Transition, error)
	JumpToFinal(ctx context.Context, eventID string) (model.Transition, error)
}

// StandingsHandler handles standings and round requests.
type StandingsHandler struct {
	deps StandingsDependencies
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(deps StandingsDependencies) *StandingsHandler {
	return &StandingsHandler{deps: deps}
}

// HandleStandings handles GET /v1/events/{id}/standings.
func (h *StandingsHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	standings, err := h.deps.GetRankedContestants(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

// HandleAdvance handles POST /v1/events/{id}/advance.
func (h *StandingsHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.AdvanceRound)
}

// HandleJumpToFinal handles POST /v1/events/{id}/jump-to-final.
func (h *StandingsHandler) HandleJumpToFinal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.JumpToFinal)
}

func (h *StandingsHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (model.Transition, error)) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tr, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}
