package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/zerverless/tabular/internal/logging"
	"github.com/zerverless/tabular/internal/operator"
	"github.com/zerverless/tabular/internal/predicate"
	"github.com/zerverless/tabular/internal/storage"
	"github.com/zerverless/tabular/internal/table"
)

const (
	DefaultPreviewLimit = 100
	MaxPreviewLimit     = 10000
)

// ValidationError rejects a request before any work is scheduled.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FileResolver maps an uploaded file ID to a readable path.
type FileResolver interface {
	Resolve(fileID string) (string, error)
}

// ArtifactStore holds job outputs.
type ArtifactStore interface {
	Persist(jobID, operation string, t *table.Table) (string, error)
	Exists(ref string) bool
	FetchPreview(ref string, limit int) (*table.Table, error)
	CountRows(ref string) (int, error)
	Remove(ref string) error
}

type Options struct {
	PreviewDefault int
	PreviewMax     int
	// LinkPrefix is prepended to an artifact ref to form its download link.
	LinkPrefix string
}

// Manager owns the job lifecycle: submission, execution by a worker,
// externally injected failures and status queries.
type Manager struct {
	store   JobStore
	queue   Queue
	files   FileResolver
	results ArtifactStore
	hub     *Hub

	previewDefault int
	previewMax     int
	linkPrefix     string
}

func NewManager(store JobStore, queue Queue, files FileResolver, results ArtifactStore, hub *Hub, opts Options) *Manager {
	if opts.PreviewMax <= 0 {
		opts.PreviewMax = MaxPreviewLimit
	}
	if opts.PreviewDefault <= 0 || opts.PreviewDefault > opts.PreviewMax {
		opts.PreviewDefault = min(DefaultPreviewLimit, opts.PreviewMax)
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Manager{
		store:          store,
		queue:          queue,
		files:          files,
		results:        results,
		hub:            hub,
		previewDefault: opts.PreviewDefault,
		previewMax:     opts.PreviewMax,
		linkPrefix:     opts.LinkPrefix,
	}
}

func (m *Manager) Hub() *Hub {
	return m.hub
}

func (m *Manager) PreviewDefault() int {
	return m.previewDefault
}

// Validate checks a submission without touching any store.
func Validate(fileID string, op operator.Operation, params operator.Params) error {
	if fileID == "" {
		return &ValidationError{Message: "file_id is required"}
	}
	if !op.Valid() {
		names := make([]string, len(operator.Operations))
		for i, o := range operator.Operations {
			names[i] = string(o)
		}
		return &ValidationError{Message: "Invalid operation. Must be one of: " + strings.Join(names, ", ")}
	}

	switch op {
	case operator.OpUnique:
		if params.Column == "" {
			return &ValidationError{Message: "Column name is required for unique operation"}
		}
	case operator.OpFilter:
		if len(params.Filters) == 0 {
			return &ValidationError{Message: "Filter conditions are required for filter operation", Err: operator.ErrEmptyFilter}
		}
		if err := predicate.ValidateSpec(params.Filters); err != nil {
			return &ValidationError{Message: err.Error(), Err: err}
		}
	}
	return nil
}

// Submit validates the request, records a PENDING job and enqueues it. It
// never waits for processing.
func (m *Manager) Submit(ctx context.Context, fileID string, op operator.Operation, params operator.Params) (*Job, error) {
	if err := Validate(fileID, op, params); err != nil {
		return nil, err
	}
	if _, err := m.files.Resolve(fileID); err != nil {
		return nil, err
	}

	j := New(fileID, op, params)
	if err := m.store.Add(ctx, j); err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}
	m.hub.Publish(j)

	logger := logging.WithFields(ctx, "job_id", j.ID, "operation", op, "file_id", fileID)
	if err := m.queue.Enqueue(ctx, j.ID); err != nil {
		logger.Error("enqueue failed", "error", err)
		m.transition(context.WithoutCancel(ctx), j.ID, Failed("Failed to schedule job"))
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	logger.Info("job submitted")
	return j, nil
}

// Execute runs one job to a terminal state and returns that state. Failures
// of the job itself are recorded as FAILURE; the returned error only reports
// problems with the job store. Executing a job that is already terminal is a
// no-op.
func (m *Manager) Execute(ctx context.Context, id string) (Status, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	logger := logging.WithFields(ctx, "job_id", id, "operation", j.Operation)
	if j.Status.Terminal() {
		logger.Debug("job already finished, skipping", "status", j.Status)
		return j.Status, nil
	}

	start := time.Now()
	result, runErr := m.run(ctx, j)

	if runErr != nil {
		if errors.Is(runErr, ErrTerminal) {
			logger.Warn("job finished while running, discarding", "error", runErr)
			m.discard(ctx, id, result)
			return m.statusOf(ctx, id)
		}
		logger.Warn("job failed", "error", runErr, "duration_ms", time.Since(start).Milliseconds())
		if _, err := m.transition(ctx, id, Failed(runErr.Error())); err != nil {
			if errors.Is(err, ErrTerminal) {
				return m.statusOf(ctx, id)
			}
			return "", err
		}
		return StatusFailure, nil
	}

	if _, err := m.transition(ctx, id, Succeeded(*result)); err != nil {
		if errors.Is(err, ErrTerminal) {
			logger.Warn("late completion rejected", "error", err)
			m.discard(ctx, id, result)
			return m.statusOf(ctx, id)
		}
		return "", err
	}

	logger.Info("job completed",
		"rows_in", result.OriginalRows,
		"rows_out", result.RowCount,
		"artifact", result.ArtifactRef,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return StatusSuccess, nil
}

func (m *Manager) statusOf(ctx context.Context, id string) (Status, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return j.Status, nil
}

// run performs the job's work. A panic becomes an error so it is reported
// like any other failure.
func (m *Manager) run(ctx context.Context, j *Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job_id", j.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	ref := storage.ArtifactName(j.ID, string(j.Operation))
	if m.results.Exists(ref) {
		// Redelivered after the artifact was written.
		if n, err := m.results.CountRows(ref); err == nil {
			if _, err := m.transition(ctx, j.ID, Progress("Saving processed file")); err != nil {
				return nil, err
			}
			return &Result{Operation: j.Operation, ArtifactRef: ref, RowCount: n}, nil
		}
	}

	if _, err := m.transition(ctx, j.ID, Progress("Reading file")); err != nil {
		return nil, err
	}
	path, err := m.files.Resolve(j.FileID)
	if err != nil {
		return nil, err
	}
	src, err := table.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if _, err := m.transition(ctx, j.ID, Progress(fmt.Sprintf("Performing %s operation", j.Operation))); err != nil {
		return nil, err
	}
	out, err := operator.Apply(src, j.Operation, j.Params)
	if err != nil {
		return nil, err
	}

	if _, err := m.transition(ctx, j.ID, Progress("Saving processed file")); err != nil {
		return nil, err
	}
	ref, err = m.results.Persist(j.ID, string(j.Operation), out)
	if err != nil {
		return nil, err
	}

	return &Result{
		Operation:    j.Operation,
		ArtifactRef:  ref,
		OriginalRows: src.Len(),
		RowCount:     out.Len(),
	}, nil
}

// discard removes an artifact produced by an execution whose job was
// failed in the meantime. A job that succeeded through another delivery
// keeps its artifact.
func (m *Manager) discard(ctx context.Context, id string, result *Result) {
	if result == nil {
		return
	}
	cur, err := m.store.Get(ctx, id)
	if err != nil || cur.Status != StatusFailure {
		return
	}
	if err := m.results.Remove(result.ArtifactRef); err != nil && !errors.Is(err, storage.ErrArtifactNotFound) {
		slog.Warn("remove discarded artifact", "job_id", id, "error", err)
	}
}

// Fail records an externally decided failure, e.g. a timeout.
func (m *Manager) Fail(ctx context.Context, id, msg string) error {
	_, err := m.transition(ctx, id, Failed(msg))
	if err != nil {
		return err
	}
	slog.Warn("job failed externally", "job_id", id, "reason", msg)
	return nil
}

func (m *Manager) transition(ctx context.Context, id string, t Transition) (*Job, error) {
	j, err := m.store.Transition(ctx, id, t)
	if err != nil {
		return j, err
	}
	slog.Debug("job transition", "job_id", id, "status", j.Status, "progress", j.Progress)
	m.hub.Publish(j)
	return j, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit, offset int, status Status) ([]*Job, int, error) {
	return m.store.List(ctx, limit, offset, status)
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.store.Stats(ctx)
}

// Recover re-enqueues every job left PENDING or PROGRESS by a previous run.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.store.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}
	for i, j := range jobs {
		if err := m.queue.Enqueue(ctx, j.ID); err != nil {
			return i, fmt.Errorf("re-enqueue %s: %w", j.ID, err)
		}
	}
	if len(jobs) > 0 {
		slog.Info("recovered unfinished jobs", "count", len(jobs))
	}
	return len(jobs), nil
}

type StatusView struct {
	TaskID   string      `json:"task_id"`
	Status   Status      `json:"status"`
	Progress string      `json:"progress,omitempty"`
	Result   *ResultView `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type ResultView struct {
	Columns  []string            `json:"columns"`
	Data     []map[string]string `json:"data"`
	FileLink string              `json:"file_link"`
	RowCount int                 `json:"row_count"`
}

// Status reports a job's state. For a successful job it streams at most
// limit rows from the stored artifact. limit must lie in [1, PreviewMax].
func (m *Manager) Status(ctx context.Context, id string, limit int) (*StatusView, error) {
	if limit < 1 || limit > m.previewMax {
		return nil, &ValidationError{Message: fmt.Sprintf("n must be between 1 and %d", m.previewMax)}
	}

	j, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{TaskID: j.ID, Status: j.Status}
	switch j.Status {
	case StatusPending, StatusProgress:
		view.Progress = j.Progress
	case StatusFailure:
		view.Error = j.Error
	case StatusSuccess:
		view.Result = m.preview(ctx, j, limit, view)
	}
	return view, nil
}

func (m *Manager) preview(ctx context.Context, j *Job, limit int, view *StatusView) *ResultView {
	rv := &ResultView{
		Columns:  []string{},
		Data:     []map[string]string{},
		FileLink: m.linkPrefix + j.Result.ArtifactRef,
		RowCount: j.Result.RowCount,
	}

	t, err := m.results.FetchPreview(j.Result.ArtifactRef, limit)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			view.Error = "Processed file is no longer available"
		} else {
			logging.FromContext(ctx).Error("fetch preview", "job_id", j.ID, "error", err)
			view.Error = "Failed to read processed file"
		}
		return rv
	}

	rv.Columns = t.Header
	for _, r := range t.Rows {
		rv.Data = append(rv.Data, t.Record(r))
	}
	return rv
}
