package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zerverless/tabular/internal/config"
	"github.com/zerverless/tabular/internal/job"
	"github.com/zerverless/tabular/internal/storage"
	"github.com/zerverless/tabular/internal/ws"
)

// Services groups everything the router dispatches to. Pool may be nil.
type Services struct {
	Jobs  *job.Manager
	Files *storage.Handlers
	Pool  PoolStats
	WS    *ws.Server
}

func NewRouter(cfg *config.Config, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	var conns ConnCounter
	if svc.WS != nil {
		conns = svc.WS
	}
	h := NewHandlers(cfg, svc.Jobs, svc.Pool, conns)

	// Health & Info
	r.Get("/health", h.Health)
	r.Get("/info", h.Info)
	r.Get("/stats", h.Stats)

	// Files
	r.Post("/api/upload-csv/", svc.Files.Upload)
	r.Post("/api/upload", svc.Files.Upload)
	r.Get("/api/processed", svc.Files.List)
	r.Get("/processed/{name}", svc.Files.Download)

	// Operations
	r.Post("/api/perform-operation", h.PerformOperation)
	r.Get("/api/task-status", h.TaskStatus)

	// Jobs API
	r.Get("/api/jobs", h.ListJobs)
	r.Get("/api/jobs/{id}", h.GetJob)

	// WebSocket
	if svc.WS != nil {
		r.Get("/ws/jobs/{id}", svc.WS.HandleJob)
	}

	return r
}
