package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zerverless/tabular/internal/operator"
	"github.com/zerverless/tabular/internal/predicate"
)

func TestNewJob(t *testing.T) {
	j := New("file-1", operator.OpUnique, operator.Params{Column: "k"})

	if j.ID == "" {
		t.Error("expected job ID")
	}
	if j.Status != StatusPending {
		t.Errorf("expected pending, got %s", j.Status)
	}
	if j.Params.Column != "k" {
		t.Errorf("expected column k, got %s", j.Params.Column)
	}
	if j.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}
}

func TestJob_Apply(t *testing.T) {
	now := time.Now().UTC()
	result := Result{Operation: operator.OpDedup, ArtifactRef: "a.csv", RowCount: 2}

	j := New("f", operator.OpDedup, operator.Params{})

	if err := j.Apply(Succeeded(result), now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("PENDING -> SUCCESS: expected ErrInvalidTransition, got %v", err)
	}
	if err := j.Apply(Progress("Reading file"), now); err != nil {
		t.Fatalf("PENDING -> PROGRESS: %v", err)
	}
	if j.StartedAt == nil || j.Progress != "Reading file" {
		t.Errorf("expected started_at and progress, got %+v", j)
	}
	if err := j.Apply(Progress("Saving processed file"), now); err != nil {
		t.Fatalf("PROGRESS -> PROGRESS: %v", err)
	}
	if err := j.Apply(Transition{To: StatusPending}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("PROGRESS -> PENDING: expected ErrInvalidTransition, got %v", err)
	}
	if err := j.Apply(Succeeded(result), now); err != nil {
		t.Fatalf("PROGRESS -> SUCCESS: %v", err)
	}
	if j.Result == nil || j.Result.RowCount != 2 || j.CompletedAt == nil || j.Progress != "" {
		t.Errorf("unexpected job after success: %+v", j)
	}

	for _, tr := range []Transition{Failed("x"), Progress("y"), Succeeded(result)} {
		if err := j.Apply(tr, now); !errors.Is(err, ErrTerminal) {
			t.Errorf("SUCCESS -> %s: expected ErrTerminal, got %v", tr.To, err)
		}
	}
	if j.Status != StatusSuccess {
		t.Errorf("terminal state changed to %s", j.Status)
	}
}

func TestJob_FailFromPending(t *testing.T) {
	j := New("f", operator.OpDedup, operator.Params{})
	if err := j.Apply(Failed("job exceeded time limit"), time.Now()); err != nil {
		t.Fatalf("PENDING -> FAILURE: %v", err)
	}
	if j.Status != StatusFailure || j.Error != "job exceeded time limit" {
		t.Errorf("unexpected job %+v", j)
	}
}

func TestJob_Clone(t *testing.T) {
	j := New("f", operator.OpFilter, operator.Params{Filters: predicate.Spec{
		"v": {Operator: predicate.OpGt, Value: "1"},
	}})
	c := j.Clone()
	c.Params.Filters["w"] = predicate.Condition{Operator: predicate.OpEq, Value: "x"}
	c.Status = StatusFailure

	if len(j.Params.Filters) != 1 || j.Status != StatusPending {
		t.Errorf("clone shares state with original: %+v", j)
	}
}

func TestMemoryStore_AddAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	j := New("f", operator.OpDedup, operator.Params{})

	if err := store.Add(ctx, j); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, j); err == nil {
		t.Error("expected duplicate add to fail")
	}

	got, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("expected %s, got %s", j.ID, got.ID)
	}

	got.Status = StatusFailure
	again, _ := store.Get(ctx, j.ID)
	if again.Status != StatusPending {
		t.Error("mutating a returned job must not change the store")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Transition(context.Background(), "nonexistent", Progress("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Transition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	j := New("f", operator.OpDedup, operator.Params{})
	store.Add(ctx, j)

	got, err := store.Transition(ctx, j.ID, Progress("Reading file"))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != StatusProgress {
		t.Errorf("expected PROGRESS, got %s", got.Status)
	}

	store.Transition(ctx, j.ID, Failed("boom"))
	if _, err := store.Transition(ctx, j.ID, Succeeded(Result{})); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}

	stored, _ := store.Get(ctx, j.ID)
	if stored.Status != StatusFailure || stored.Error != "boom" {
		t.Errorf("unexpected stored job %+v", stored)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var ids []string
	for i := 0; i < 5; i++ {
		j := New("f", operator.OpDedup, operator.Params{})
		store.Add(ctx, j)
		ids = append(ids, j.ID)
	}
	store.Transition(ctx, ids[0], Failed("x"))

	jobs, total, err := store.List(ctx, 2, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(jobs) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(jobs), total)
	}
	if jobs[0].ID != ids[4] {
		t.Errorf("expected newest first")
	}

	jobs, total, _ = store.List(ctx, 10, 0, StatusFailure)
	if total != 1 || jobs[0].ID != ids[0] {
		t.Errorf("expected only the failed job, got %d", total)
	}

	jobs, _, _ = store.List(ctx, 10, 10, "")
	if len(jobs) != 0 {
		t.Errorf("expected empty page, got %d", len(jobs))
	}

	unfinished, _ := store.ListUnfinished(ctx)
	if len(unfinished) != 4 || unfinished[0].ID != ids[1] {
		t.Errorf("expected 4 unfinished oldest first, got %d", len(unfinished))
	}

	st, _ := store.Stats(ctx)
	if st.Pending != 4 || st.Failure != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}
