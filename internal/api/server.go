// Package api serves a read-only live view of a migration run over HTTP
// and WebSocket. It never mutates scheduler state.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jehertzi/netapp-eng-vol-moves/internal/scheduler"
)

// Server exposes snapshot and job views of one run.
type Server struct {
	Snapshot func() scheduler.Snapshot
	Jobs     func() []scheduler.JobStatus
}

// NewRouter builds the chi router for the status server.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.GetStatus)
		r.Get("/jobs", s.GetJobs)
	})
	r.Get("/ws/status", s.StreamStatus)

	return r
}

// GetStatus returns the current run snapshot.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// GetJobs returns per-volume terminal outcomes recorded so far.
func (s *Server) GetJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Jobs()
	if jobs == nil {
		jobs = []scheduler.JobStatus{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
