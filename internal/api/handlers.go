package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zerverless/tabular/internal/config"
	"github.com/zerverless/tabular/internal/job"
	"github.com/zerverless/tabular/internal/logging"
	"github.com/zerverless/tabular/internal/operator"
	"github.com/zerverless/tabular/internal/predicate"
	"github.com/zerverless/tabular/internal/storage"
	"github.com/zerverless/tabular/internal/worker"
)

var startTime = time.Now()

// PoolStats reports worker pool utilisation.
type PoolStats interface {
	Stats() worker.Stats
}

// ConnCounter reports open websocket subscriptions.
type ConnCounter interface {
	Connections() int
}

type Handlers struct {
	cfg   *config.Config
	jobs  *job.Manager
	pool  PoolStats
	conns ConnCounter
}

func NewHandlers(cfg *config.Config, jobs *job.Manager, pool PoolStats, conns ConnCounter) *Handlers {
	return &Handlers{cfg: cfg, jobs: jobs, pool: pool, conns: conns}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "tabular",
		"node_id":        h.cfg.NodeID,
		"version":        "1.0.0",
		"job_store":      h.cfg.JobStore,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	jobStats, err := h.jobs.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("job stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read job stats"})
		return
	}

	resp := map[string]any{
		"node_id":        h.cfg.NodeID,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs":           jobStats,
	}
	if h.pool != nil {
		ps := h.pool.Stats()
		resp["workers"] = map[string]int{
			"total":     ps.Workers,
			"idle":      ps.Idle,
			"busy":      ps.Busy,
			"completed": ps.Completed,
			"failed":    ps.Failed,
			"timed_out": ps.TimedOut,
			"queued":    ps.Queued,
		}
	}
	if h.conns != nil {
		resp["subscribers"] = h.conns.Connections()
	}
	writeJSON(w, http.StatusOK, resp)
}

type OperationRequest struct {
	FileID           string             `json:"file_id"`
	Operation        operator.Operation `json:"operation"`
	Column           string             `json:"column,omitempty"`
	FilterConditions predicate.Spec     `json:"filter_conditions,omitempty"`
}

func (h *Handlers) PerformOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := operator.Params{Column: req.Column, Filters: req.FilterConditions}
	j, err := h.jobs.Submit(r.Context(), req.FileID, req.Operation, params)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message})
		case errors.Is(err, storage.ErrFileNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found."})
		default:
			logging.FromContext(r.Context()).Error("submit operation", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Operation failed: " + err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Operation started",
		"task_id": j.ID,
	})
}

func (h *Handlers) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_id is required"})
		return
	}

	n := h.jobs.PreviewDefault()
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be an integer"})
			return
		}
		n = v
	}

	view, err := h.jobs.Status(r.Context(), id, n)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message})
		case errors.Is(err, job.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		default:
			logging.FromContext(r.Context()).Error("task status", "task_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch task status: " + err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	status := job.Status(r.URL.Query().Get("status"))

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + string(status)})
		return
	}

	jobs, total, err := h.jobs.List(r.Context(), limit, offset, status)
	if err != nil {
		logging.FromContext(r.Context()).Error("list jobs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list jobs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
