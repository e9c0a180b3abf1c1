// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	ContestantDependencies
	ScoreDependencies
	StandingsDependencies
	LiveDependencies
	HealthChecker
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	metricsHandler     http.Handler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	contestantsHandler *ContestantsHandler
	scoresHandler      *ScoresHandler
	standingsHandler   *StandingsHandler
	liveHandler        *LiveHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(deps),
		metricsHandler:     NewMetricsHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		contestantsHandler: NewContestantsHandler(deps),
		scoresHandler:      NewScoresHandler(deps),
		standingsHandler:   NewStandingsHandler(deps),
		liveHandler:        NewLiveHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/events", MetricsMiddleware(s.eventsHandler.HandleCreate, "events"))
	mux.HandleFunc("GET /v1/events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "event"))
	mux.HandleFunc("PUT /v1/events/{id}/criteria", MetricsMiddleware(s.eventsHandler.HandleUpdateCriteria, "criteria"))
	mux.HandleFunc("PUT /v1/events/{id}/lock", MetricsMiddleware(s.eventsHandler.HandleLock, "lock"))
	mux.HandleFunc("POST /v1/events/{id}/contestants", MetricsMiddleware(s.contestantsHandler.HandleRegister, "contestants"))
	mux.HandleFunc("GET /v1/events/{id}/contestants", MetricsMiddleware(s.contestantsHandler.HandleList, "contestants"))

	mux.HandleFunc("DELETE /v1/contestants/{id}", MetricsMiddleware(s.contestantsHandler.HandleDelete, "contestant"))
	mux.HandleFunc("POST /v1/contestants/{id}/eliminate", MetricsMiddleware(s.contestantsHandler.HandleEliminate, "eliminate"))
	mux.HandleFunc("PUT /v1/contestants/{id}/status", MetricsMiddleware(s.contestantsHandler.HandleStatus, "status"))
	mux.HandleFunc("GET /v1/contestants/{id}/composite", MetricsMiddleware(s.contestantsHandler.HandleComposite, "composite"))

	mux.HandleFunc("POST /v1/scores", MetricsMiddleware(s.scoresHandler.HandleSubmit, "scores"))

	mux.HandleFunc("GET /v1/events/{id}/standings", MetricsMiddleware(s.standingsHandler.HandleStandings, "standings"))
	mux.HandleFunc("POST /v1/events/{id}/advance", MetricsMiddleware(s.standingsHandler.HandleAdvance, "advance"))
	mux.HandleFunc("POST /v1/events/{id}/jump-to-final", MetricsMiddleware(s.standingsHandler.HandleJumpToFinal, "jump_to_final"))

	mux.HandleFunc("GET /v1/events/{id}/live", MetricsMiddleware(s.liveHandler.HandleView, "live"))
	mux.HandleFunc("GET /v1/events/{id}/live/stream", s.liveHandler.HandleStream)
	mux.HandleFunc("POST /v1/live/reconnect", MetricsMiddleware(s.liveHandler.HandleReconnect, "reconnect"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
