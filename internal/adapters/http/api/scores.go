// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/types"
)

// ScoreDependencies defines the score submission operation.
type ScoreDependencies interface {
	SubmitScore(ctx context.Context, req types.SubmitScoreRequest) (types.SubmitResult, error)
}

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleSubmit handles POST /v1/scores. A replayed submission id is
// acknowledged with 200 and duplicate set; a new record gets 201.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitScoreRequest
	if err := decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.SubmitScore(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
