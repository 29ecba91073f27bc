package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zerverless/tabular/internal/job"
)

// Executor runs jobs and accepts externally decided failures. Execute
// returns the terminal status the job ended in. *job.Manager satisfies it.
type Executor interface {
	Execute(ctx context.Context, id string) (job.Status, error)
	Fail(ctx context.Context, id, msg string) error
}

// Pool runs a fixed number of workers pulling job IDs from a queue. A job
// that outlives the timeout is failed through the Executor while it keeps
// running; its late result is then rejected by the job lifecycle.
type Pool struct {
	queue   job.Queue
	exec    Executor
	timeout time.Duration
	slots   *slots
}

func New(queue job.Queue, exec Executor, workers int, timeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:   queue,
		exec:    exec,
		timeout: timeout,
		slots:   newSlots(workers),
	}
}

// Run blocks until ctx is cancelled or the queue is closed, then waits
// for in-flight jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.slots.slots {
		g.Go(func() error {
			return p.loop(ctx, i)
		})
	}
	slog.Info("worker pool started", "workers", len(p.slots.slots), "timeout", p.timeout)
	err := g.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, slot int) error {
	defer p.slots.setStopped(slot)
	for {
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, job.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		p.handle(ctx, slot, id)
	}
}

func (p *Pool) handle(ctx context.Context, slot int, id string) {
	// A claimed job runs to completion even during shutdown.
	runCtx := context.WithoutCancel(ctx)
	logger := slog.With("job_id", id, "worker", slot)

	p.slots.setBusy(slot, id)
	logger.Debug("job claimed")

	var timer *time.Timer
	if p.timeout > 0 {
		timer = time.AfterFunc(p.timeout, func() {
			msg := fmt.Sprintf("job exceeded time limit of %s", p.timeout)
			if err := p.exec.Fail(runCtx, id, msg); err != nil {
				if !errors.Is(err, job.ErrTerminal) {
					logger.Error("failed to record timeout", "error", err)
				}
				return
			}
			p.slots.timeout()
			logger.Warn("job timed out", "timeout", p.timeout)
		})
	}

	status, err := p.exec.Execute(runCtx, id)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		logger.Error("job execution failed", "error", err)
	}
	p.slots.setIdle(slot, err != nil || status == job.StatusFailure)
}

func (p *Pool) Stats() Stats {
	st := p.slots.stats()
	st.Queued = p.queue.Len()
	return st
}
