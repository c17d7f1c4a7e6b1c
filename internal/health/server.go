package health

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/worker"
)

// JobStats is the read-only view of the worker the endpoints expose.
type JobStats interface {
	Healthy() bool
	Recent() []worker.JobRecord
}

// Server is the thin liveness/metrics surface consumed by the orchestrator.
// No business logic lives here.
type Server struct {
	Stats     JobStats
	Logger    zerolog.Logger
	startedAt time.Time
}

func NewServer(stats JobStats, logger zerolog.Logger) *Server {
	return &Server{Stats: stats, Logger: logger, startedAt: time.Now()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !s.Stats.Healthy() {
		s.respond(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.respond(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Seconds(),
		"memory": map[string]any{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      mem.NumGC,
		},
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	records := s.Stats.Recent()
	if records == nil {
		records = []worker.JobRecord{}
	}
	s.respond(w, http.StatusOK, records)
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Error().Err(err).Msg("health response encode failed")
	}
}
