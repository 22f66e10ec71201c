// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/guildboard/internal/domain/event"
	"github.com/okian/guildboard/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateEvent(ctx context.Context, kind string, duration time.Duration) (model.EventRecord, error)
	ListEvents(ctx context.Context) ([]model.EventRecord, error)
	GetEvent(ctx context.Context, id string) (event.View, error)
	ActivateEvent(ctx context.Context, id string) (model.EventRecord, error)
	EnrollParticipant(ctx context.Context, id, playerID, displayName string) (model.ParticipantRecord, error)
	EndEvent(ctx context.Context, id string) (model.EventRecord, error)
	AbandonEvent(ctx context.Context, id string) error
	EventResult(ctx context.Context, id string) (event.Result, error)

	// Ready reports whether the engine can serve requests.
	Ready(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps),
		statsHandler:  NewStatsHandler(statsProvider),
		eventsHandler: NewEventsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandleCreate, "events_create"))
	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleList, "events_list"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "events_get"))
	mux.HandleFunc("DELETE /events/{id}", MetricsMiddleware(s.eventsHandler.HandleAbandon, "events_abandon"))
	mux.HandleFunc("POST /events/{id}/activate", MetricsMiddleware(s.eventsHandler.HandleActivate, "events_activate"))
	mux.HandleFunc("POST /events/{id}/participants", MetricsMiddleware(s.eventsHandler.HandleEnroll, "events_enroll"))
	mux.HandleFunc("POST /events/{id}/end", MetricsMiddleware(s.eventsHandler.HandleEnd, "events_end"))
	mux.HandleFunc("GET /events/{id}/result", MetricsMiddleware(s.eventsHandler.HandleResult, "events_result"))
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

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_error"
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
