package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/recollect/internal/engine"
	"github.com/lazypower/recollect/internal/store"
)

// Server is the recollect HTTP API server, a thin JSON layer over the engine.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/memories", s.handleRemember)
		r.Get("/recall", s.handleRecall)
		r.Delete("/memories/{id}", s.handleForget)

		r.Post("/entities", s.handleCreateEntity)
		r.Patch("/entities/{name}", s.handleUpdateEntity)
		r.Delete("/entities/{name}", s.handleDeleteEntity)

		r.Post("/relations", s.handleCreateRelation)
		r.Delete("/relations", s.handleDeleteRelation)

		r.Get("/graph", s.handleReadGraph)
		r.Post("/maintenance", s.handleMaintenance)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses: NotFound 404,
// AmbiguousMatch 409 with the candidate list, IntegrityViolation 409,
// CapabilityUnavailable 503, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var ambiguous *engine.AmbiguousMatchError
	var capability *engine.CapabilityError

	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"candidates": ambiguous.Candidates,
		})
	case errors.Is(err, engine.ErrIntegrityViolation):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &capability):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": err.Error(),
			"tried": capability.Tried,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
