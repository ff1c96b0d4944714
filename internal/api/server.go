// Package api exposes mutation jobs over HTTP: submission, lifecycle
// control, and result retrieval on top of the engine and the store.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
)

const serviceName = "mutest"

// Version is the service version reported by the health endpoints.
var Version = "0.1.0"

// Server represents the API server
type Server struct {
	engine *engine.Engine
	store  *db.Store
	router *chi.Mux
}

// NewServer creates a new API server
func NewServer(eng *engine.Engine, store *db.Store) (*Server, error) {
	s := &Server{
		engine: eng,
		store:  store,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/mutations", func(r chi.Router) {
			r.Post("/", s.createMutation)
			r.Get("/", s.listMutations)
			r.Post("/dry-run", s.dryRun)

			r.Route("/{mutationID}", func(r chi.Router) {
				r.Get("/", s.getMutation)
				r.Delete("/", s.deleteMutation)
				r.Get("/results", s.getMutationResults)
				r.Get("/dry-run", s.dryRunMutation)
				r.Post("/start", s.startMutation)
				r.Post("/cancel", s.cancelMutation)
			})
		})
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	if err := s.store.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("database health check failed")
		respondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"service": serviceName,
		"version": Version,
		"checks": map[string]string{
			"database": "healthy",
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
