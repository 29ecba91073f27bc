package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zerverless/tabular/internal/operator"
	"github.com/zerverless/tabular/internal/predicate"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusProgress Status = "PROGRESS"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProgress, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

var (
	ErrNotFound          = errors.New("job not found")
	ErrTerminal          = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Result describes the artifact a successful job produced. The rows
// themselves stay in the result store.
type Result struct {
	Operation    operator.Operation `json:"operation"`
	ArtifactRef  string             `json:"artifact_ref"`
	OriginalRows int                `json:"original_rows,omitempty"`
	RowCount     int                `json:"row_count"`
}

type Job struct {
	ID          string             `json:"id"`
	FileID      string             `json:"file_id"`
	Operation   operator.Operation `json:"operation"`
	Params      operator.Params    `json:"params"`
	Status      Status             `json:"status"`
	Progress    string             `json:"progress,omitempty"`
	Result      *Result            `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

func New(fileID string, op operator.Operation, params operator.Params) *Job {
	return &Job{
		ID:        uuid.NewString(),
		FileID:    fileID,
		Operation: op,
		Params:    params,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params.Filters != nil {
		c.Params.Filters = make(predicate.Spec, len(j.Params.Filters))
		for k, v := range j.Params.Filters {
			c.Params.Filters[k] = v
		}
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Transition is a requested state change. Every JobStore applies it through
// Job.Apply so the rules live in one place.
type Transition struct {
	To       Status
	Progress string
	Result   *Result
	Error    string
}

func Progress(note string) Transition {
	return Transition{To: StatusProgress, Progress: note}
}

func Succeeded(r Result) Transition {
	return Transition{To: StatusSuccess, Result: &r}
}

func Failed(msg string) Transition {
	return Transition{To: StatusFailure, Error: msg}
}

// Apply moves j through the state machine
// PENDING -> PROGRESS* -> SUCCESS | FAILURE.
func (j *Job) Apply(t Transition, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, j.ID, j.Status)
	}

	switch t.To {
	case StatusProgress:
		if j.StartedAt == nil {
			started := now
			j.StartedAt = &started
		}
		j.Status = StatusProgress
		j.Progress = t.Progress

	case StatusSuccess:
		if j.Status != StatusProgress {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, t.To)
		}
		if t.Result == nil {
			return fmt.Errorf("%w: success without result", ErrInvalidTransition)
		}
		r := *t.Result
		j.Status = StatusSuccess
		j.Result = &r
		j.Progress = ""
		j.CompletedAt = &now

	case StatusFailure:
		j.Status = StatusFailure
		j.Error = t.Error
		j.Progress = ""
		j.CompletedAt = &now

	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, t.To)
	}
	return nil
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // FIFO order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		order: make([]string, 0),
	}
}

func (s *MemoryStore) Add(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("job already exists: %s", j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	s.order = append(s.order, j.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, t Transition) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := j.Clone()
	if err := next.Apply(t, time.Now().UTC()); err != nil {
		return j.Clone(), err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

// List returns jobs newest first.
func (s *MemoryStore) List(_ context.Context, limit, offset int, status Status) ([]*Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*Job
	for i := len(s.order) - 1; i >= 0; i-- {
		j := s.jobs[s.order[i]]
		if status == "" || j.Status == status {
			filtered = append(filtered, j)
		}
	}

	page, total := paginate(filtered, limit, offset)
	out := make([]*Job, len(page))
	for i, j := range page {
		out[i] = j.Clone()
	}
	return out, total, nil
}

// ListUnfinished returns PENDING and PROGRESS jobs oldest first.
func (s *MemoryStore) ListUnfinished(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Job
	for _, id := range s.order {
		if j := s.jobs[id]; !j.Status.Terminal() {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, j := range s.jobs {
		st.count(j.Status)
	}
	return st, nil
}

func paginate(jobs []*Job, limit, offset int) ([]*Job, int) {
	total := len(jobs)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*Job{}, total
	}

	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return jobs[offset:end], total
}
