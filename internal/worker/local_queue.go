package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"syllabussync/internal/app"
	"syllabussync/internal/model"
	"syllabussync/internal/pkg/backoff"
)

// LocalQueue runs stage jobs in-process, one goroutine per job, so embed
// and events run side by side after chunk. Failed jobs are retried with
// backoff like on the broker.
type LocalQueue struct {
	runner      StageRunner
	maxAttempts int
	retryBase   time.Duration
	logger      *log.Logger

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func NewLocalQueue(maxAttempts int, retryBase time.Duration, logger *log.Logger) *LocalQueue {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &LocalQueue{maxAttempts: maxAttempts, retryBase: retryBase, logger: logger}
}

// Bind sets the runner. The runner usually enqueues into this queue, so
// it is wired after both exist.
func (q *LocalQueue) Bind(runner StageRunner) {
	q.runner = runner
}

func (q *LocalQueue) Enqueue(ctx context.Context, job model.StageJob) error {
	if q.runner == nil {
		return errors.New("local queue has no runner")
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(context.WithoutCancel(ctx), job)
	}()
	return nil
}

// Wait blocks until every job, including the ones enqueued by other jobs,
// has finished, and returns the failures.
func (q *LocalQueue) Wait() error {
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	err := errors.Join(q.errs...)
	q.errs = nil
	return err
}

func (q *LocalQueue) run(ctx context.Context, job model.StageJob) {
	for {
		_, err := q.runner.RunStage(ctx, job)
		if err == nil {
			return
		}
		job.Attempt++
		if app.IsPermanent(err) || job.Attempt >= q.maxAttempts {
			q.mu.Lock()
			q.errs = append(q.errs, fmt.Errorf("stage %s for version %d: %w", job.Stage, job.VersionID, err))
			q.mu.Unlock()
			return
		}
		delay := backoff.Delay(q.retryBase, job.Attempt, backoff.DefaultMax)
		q.logger.Warn("local stage failed, retrying",
			"version_id", job.VersionID, "stage", job.Stage, "attempt", job.Attempt, "delay", delay, "err", err)
		time.Sleep(delay)
	}
}
