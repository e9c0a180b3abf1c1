package api

import (
	"errors"
	"net/http"

	"github.com/okian/podium/internal/adapters/repository"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/rounds"
	"github.com/okian/podium/internal/projector"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// errorMapping translates a service error to a status and an error code.
type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{model.ErrUnknownCriteria, http.StatusBadRequest, "unknown_criterion"},
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{rounds.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{rounds.ErrWrongEvent, http.StatusBadRequest, "wrong_event"},
	{repository.ErrNotFound, http.StatusNotFound, "not_found"},
	{rounds.ErrRoundConflict, http.StatusConflict, "round_conflict"},
	{rounds.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{rounds.ErrAlreadyEliminated, http.StatusConflict, "already_eliminated"},
	{service.ErrScoringClosed, http.StatusConflict, "scoring_closed"},
	{service.ErrEventClosed, http.StatusConflict, "event_closed"},
	{repository.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{projector.ErrTooManySubscribers, http.StatusTooManyRequests, "too_many_streams"},
	{projector.ErrDisconnected, http.StatusServiceUnavailable, "disconnected"},
	{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
	{repository.ErrClosed, http.StatusServiceUnavailable, "unavailable"},
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError writes err using its mapped status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
