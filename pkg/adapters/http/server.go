// Package http exposes an Engine over a JSON REST API.
//
// The surface mirrors the library API one-to-one: start, resume, replay, and
// cancel executions, read their history, and manage the result cache. Handlers
// are thin; all semantics live in the engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Engine is the subset of the arbor API the server exposes.
type Engine interface {
	Execute(ctx context.Context, initial domain.GraphState) (*arbor.Handle, error)
	Resume(ctx context.Context, executionID string) (*arbor.Handle, error)
	Replay(ctx context.Context, originalID string) (*arbor.Handle, error)
	Cancel(ctx context.Context, executionID string) error
	History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, executionID string) error
	InvalidateCache(ctx context.Context, pattern string) (int, error)
}

// Server handles the REST routes for one engine.
type Server struct {
	engine   Engine
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics mounts /metrics backed by the given gatherer.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/executions", func(r chi.Router) {
		r.Post("/", s.execute)
		r.Get("/", s.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.history)
			r.Delete("/", s.remove)
			r.Post("/resume", s.resume)
			r.Post("/replay", s.replay)
			r.Post("/cancel", s.cancel)
		})
	})
	r.Post("/cache/invalidate", s.invalidateCache)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExecuteRequest is the POST /executions body.
type ExecuteRequest struct {
	State domain.GraphState `json:"state"`

	// Wait blocks the request until the execution finishes and returns the
	// final snapshot instead of an acknowledgement.
	Wait bool `json:"wait,omitempty"`
}

// ExecutionResponse acknowledges an accepted execution.
type ExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
}

// InvalidateRequest is the POST /cache/invalidate body.
type InvalidateRequest struct {
	Pattern string `json:"pattern"`
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("execute: invalid request body", "err", err)
		return
	}

	handle, err := s.engine.Execute(r.Context(), body.State)
	if err != nil {
		s.writeError(w, "execute", err)
		return
	}
	s.respondHandle(w, r, handle, body.Wait)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	handle, err := s.engine.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "resume", err)
		return
	}
	s.respondHandle(w, r, handle, wait)
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	handle, err := s.engine.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "replay", err)
		return
	}
	s.respondHandle(w, r, handle, wait)
}

// respondHandle either acknowledges the running execution or, when wait is
// set, blocks until it finishes and returns the final snapshot. A suspended or
// failed outcome is still a 200: the snapshot carries the status and error.
func (s *Server) respondHandle(w http.ResponseWriter, r *http.Request, handle *arbor.Handle, wait bool) {
	if !wait {
		writeJSON(w, http.StatusAccepted, ExecutionResponse{
			ExecutionID: handle.ExecutionID,
			Status:      handle.Status(),
		})
		return
	}

	snap, err := handle.Wait(r.Context())
	if err != nil && snap == nil {
		s.writeError(w, "wait", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Cancel(r.Context(), id); err != nil {
		s.writeError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, ExecutionResponse{ExecutionID: id, Status: domain.StatusSuspended})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.List(r.Context())
	if err != nil {
		s.writeError(w, "list", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"executions": ids})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var body InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Pattern == "" {
		http.Error(w, "invalid request body: pattern required", http.StatusBadRequest)
		return
	}

	removed, err := s.engine.InvalidateCache(r.Context(), body.Pattern)
	if err != nil {
		s.writeError(w, "invalidate cache", err)
		return
	}
	writeJSON(w, http.StatusOK, InvalidateResponse{Removed: removed})
}

// writeError maps domain sentinels to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrExecutionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
