package job

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerverless/tabular/internal/operator"
)

func newPGStore(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := NewPGStore(ctx, pool)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE jobs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestPGStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newPGStore(t)

	j := New("f", operator.OpUnique, operator.Params{Column: "k"})
	if err := store.Add(ctx, j); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := store.Transition(ctx, j.ID, Progress("Reading file")); err != nil {
		t.Fatalf("progress: %v", err)
	}
	got, err := store.Transition(ctx, j.ID, Succeeded(Result{Operation: operator.OpUnique, ArtifactRef: "r.csv", RowCount: 1}))
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got.Status)
	}
	if _, err := store.Transition(ctx, j.ID, Failed("late")); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}

	stored, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Params.Column != "k" || stored.Result.RowCount != 1 {
		t.Errorf("unexpected stored job %+v", stored)
	}

	jobs, total, err := store.List(ctx, 0, 0, StatusSuccess)
	if err != nil || total != 1 || len(jobs) != 1 {
		t.Errorf("list: %d jobs, total %d, err %v", len(jobs), total, err)
	}

	st, err := store.Stats(ctx)
	if err != nil || st.Success != 1 {
		t.Errorf("stats: %+v, err %v", st, err)
	}
}

func TestPGStore_NotFound(t *testing.T) {
	store := newPGStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Transition(context.Background(), "missing", Progress("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
