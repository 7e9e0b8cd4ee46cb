// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/promptelo/internal/adapters/repository"
	service "github.com/okian/promptelo/internal/app"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/task"
)

// DefaultMaxListLimit caps list and leaderboard limits.
const DefaultMaxListLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit enqueues a tournament. duplicate is true for a known idempotency key.
	Submit(ctx context.Context, job model.Job) (id string, duplicate bool, err error)

	// Status and Result expose job state and finished tournaments.
	Status(ctx context.Context, id string) (model.JobInfo, error)
	Result(ctx context.Context, id string) (*model.Result, error)
	List(ctx context.Context, limit int) ([]repository.Summary, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	tournamentsHandler *TournamentsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		tournamentsHandler: NewTournamentsHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	t := s.tournamentsHandler
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /tournaments", MetricsMiddleware(t.HandleSubmit, "submit"))
	mux.HandleFunc("GET /tournaments", MetricsMiddleware(t.HandleList, "list"))
	mux.HandleFunc("GET /tournaments/{id}", MetricsMiddleware(t.HandleGet, "tournament"))
	mux.HandleFunc("GET /tournaments/{id}/leaderboard", MetricsMiddleware(t.HandleLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /tournaments/{id}/matches", MetricsMiddleware(t.HandleMatches, "matches"))
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

// writeServiceError translates service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, task.ErrInvalid), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
