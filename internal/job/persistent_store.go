package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zerverless/tabular/internal/db"
)

const SystemNamespace = "tabular/"

const jobPrefix = "jobs/"

// PersistentStore keeps jobs as JSON documents in badger so they survive
// a restart.
type PersistentStore struct {
	dbStore *db.Store
}

func NewPersistentStore(dbStore *db.Store) *PersistentStore {
	return &PersistentStore{dbStore: dbStore}
}

func (s *PersistentStore) Add(_ context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := s.dbStore.Set(SystemNamespace, jobPrefix+j.ID, data); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (s *PersistentStore) Get(_ context.Context, id string) (*Job, error) {
	data, err := s.dbStore.Get(SystemNamespace, jobPrefix+id)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	return decodeJob(data)
}

func (s *PersistentStore) Transition(_ context.Context, id string, t Transition) (*Job, error) {
	var (
		updated  Job
		applyErr error
	)

	err := s.dbStore.Update(SystemNamespace, jobPrefix+id, func(current []byte) ([]byte, error) {
		j, err := decodeJob(current)
		if err != nil {
			return nil, err
		}
		updated = *j
		if applyErr = updated.Apply(t, time.Now().UTC()); applyErr != nil {
			return nil, applyErr
		}
		return json.Marshal(&updated)
	})

	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case applyErr != nil:
		return &updated, applyErr
	case err != nil:
		return nil, fmt.Errorf("transition job: %w", err)
	}
	return &updated, nil
}

func (s *PersistentStore) all() ([]*Job, error) {
	var jobs []*Job
	err := s.dbStore.Scan(SystemNamespace, jobPrefix, func(key string, value []byte) error {
		j, err := decodeJob(value)
		if err != nil {
			slog.Warn("skipping unreadable job document", "key", key, "error", err)
			return nil
		}
		jobs = append(jobs, j)
		return nil
	})
	return jobs, err
}

// List returns jobs newest first.
func (s *PersistentStore) List(_ context.Context, limit, offset int, status Status) ([]*Job, int, error) {
	jobs, err := s.all()
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}

	var filtered []*Job
	for _, j := range jobs {
		if status == "" || j.Status == status {
			filtered = append(filtered, j)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	page, total := paginate(filtered, limit, offset)
	return page, total, nil
}

func (s *PersistentStore) ListUnfinished(_ context.Context) ([]*Job, error) {
	jobs, err := s.all()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var out []*Job
	for _, j := range jobs {
		if !j.Status.Terminal() {
			out = append(out, j)
		}
	}

	// Sort by CreatedAt for FIFO order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PersistentStore) Stats(_ context.Context) (Stats, error) {
	var st Stats
	jobs, err := s.all()
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	for _, j := range jobs {
		st.count(j.Status)
	}
	return st, nil
}
