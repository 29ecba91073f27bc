package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);
CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at);
`

// PGStore keeps jobs in postgres. Transitions lock the row so concurrent
// workers and timeouts serialize on it.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("create jobs schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Add(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, created_at, data) VALUES ($1, $2, $3, $4)`,
		j.ID, string(j.Status), j.CreatedAt, data,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Job, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM jobs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(data)
}

func (s *PGStore) Transition(ctx context.Context, id string, t Transition) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}

	j, err := decodeJob(data)
	if err != nil {
		return nil, err
	}
	if err := j.Apply(t, time.Now().UTC()); err != nil {
		return j, err
	}

	next, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $2, data = $3 WHERE id = $1`,
		id, string(j.Status), next,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return j, nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int, status Status) ([]*Job, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE $1 = '' OR status = $1`, string(status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	var pageLimit any
	if limit > 0 {
		pageLimit = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM jobs WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(status), pageLimit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *PGStore) ListUnfinished(ctx context.Context) ([]*Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM jobs WHERE status IN ($1, $2) ORDER BY created_at`,
		string(StatusPending), string(StatusProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		st.add(Status(status), n)
	}
	return st, rows.Err()
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
