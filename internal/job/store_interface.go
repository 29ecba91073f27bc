package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JobStore defines the interface for job storage (in-memory, badger and postgres).
// Transition must apply the change atomically with respect to other
// transitions of the same job.
type JobStore interface {
	Add(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Transition(ctx context.Context, id string, t Transition) (*Job, error)
	List(ctx context.Context, limit, offset int, status Status) ([]*Job, int, error)
	ListUnfinished(ctx context.Context) ([]*Job, error)
	Stats(ctx context.Context) (Stats, error)
}

type Stats struct {
	Pending  int `json:"pending"`
	Progress int `json:"progress"`
	Success  int `json:"success"`
	Failure  int `json:"failure"`
}

func (s *Stats) count(status Status) {
	s.add(status, 1)
}

func (s *Stats) add(status Status, n int) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProgress:
		s.Progress += n
	case StatusSuccess:
		s.Success += n
	case StatusFailure:
		s.Failure += n
	}
}

// decodeJob reads a stored job document. Numbers inside filter operands stay
// json.Number so they compare and print exactly as submitted.
func decodeJob(data []byte) (*Job, error) {
	var j Job
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}
