package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/mfu/internal/mainloop"
	"github.com/lazypower/mfu/internal/mfu"
	"github.com/lazypower/mfu/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the mfu HTTP API server.
type Server struct {
	db      *store.DB
	tracker *mfu.Tracker
	loop    *mainloop.Loop
	log     logrus.FieldLogger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server. Stream subscribers are registered on loop, which
// the caller must be running.
func New(db *store.DB, tracker *mfu.Tracker, loop *mainloop.Loop, log logrus.FieldLogger, version string) *Server {
	s := &Server{
		db:      db,
		tracker: tracker,
		loop:    loop,
		log:     log,
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
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/files", s.handleGetFiles)
		r.Get("/files/stream", s.handleStream)
		r.Post("/files/accessed", s.handleAccessed)
		r.Post("/files/moved", s.handleMoved)
		r.Post("/files/deleted", s.handleDeleted)

		r.Post("/maintenance", s.handleMaintenance)
	})

	r.Handle("/metrics", promhttp.Handler())

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

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
