package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"syllabussync/internal/app"
	"syllabussync/internal/cache"
	"syllabussync/internal/model"
	"syllabussync/internal/pkg/backoff"
	"syllabussync/internal/platform/rabbitmq"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBase      = 5 * time.Second
	defaultLockRetryDelay = 10 * time.Second
	releaseTimeout        = 5 * time.Second
)

type StageRunner interface {
	RunStage(ctx context.Context, job model.StageJob) (*app.StageResult, error)
}

type DelayedQueue interface {
	EnqueueAfter(ctx context.Context, job model.StageJob, delay time.Duration) error
}

type StageLocker interface {
	Acquire(ctx context.Context, versionID uint, stage string) (func(context.Context) error, error)
}

type StageWorkerOptions struct {
	QueueName      string
	Prefetch       int
	MaxAttempts    int
	RetryBase      time.Duration
	LockRetryDelay time.Duration
}

type disposition int

const (
	dispositionAck disposition = iota
	// dispositionDead rejects without requeue so the broker dead-letters it.
	dispositionDead
	// dispositionRequeue hands the delivery back when it could not be
	// rescheduled.
	dispositionRequeue
)

// StageWorker consumes stage jobs from RabbitMQ. Failed runs are
// republished with a growing delay; permanent failures and exhausted
// jobs go to the dead letter queue.
type StageWorker struct {
	conn   *amqp.Connection
	runner StageRunner
	retry  DelayedQueue
	lock   StageLocker
	opts   StageWorkerOptions
	logger *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStageWorker builds a worker. lock may be nil when only one worker
// consumes the queue.
func NewStageWorker(conn *amqp.Connection, runner StageRunner, retry DelayedQueue, lock StageLocker, opts StageWorkerOptions, logger *log.Logger) *StageWorker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.LockRetryDelay <= 0 {
		opts.LockRetryDelay = defaultLockRetryDelay
	}
	return &StageWorker{
		conn:   conn,
		runner: runner,
		retry:  retry,
		lock:   lock,
		opts:   opts,
		logger: logger,
	}
}

func (w *StageWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareStageTopology(ch, w.opts.QueueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.opts.QueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.logger.Info("stage worker started", "queue", w.opts.QueueName, "prefetch", w.opts.Prefetch)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed", "queue", w.opts.QueueName)
					return
				}
				switch w.handle(workerCtx, d.Body) {
				case dispositionAck:
					_ = d.Ack(false)
				case dispositionDead:
					_ = d.Nack(false, false)
				case dispositionRequeue:
					_ = d.Nack(false, true)
				}
			}
		}
	}()

	return nil
}

func (w *StageWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *StageWorker) handle(ctx context.Context, body []byte) disposition {
	var job model.StageJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.Error("decode stage job failed", "err", err)
		return dispositionDead
	}
	if !model.ValidStage(job.Stage) || job.VersionID == 0 {
		w.logger.Error("reject malformed stage job", "version_id", job.VersionID, "stage", job.Stage)
		return dispositionDead
	}

	if w.lock != nil {
		release, err := w.lock.Acquire(ctx, job.VersionID, job.Stage)
		if errors.Is(err, cache.ErrLockHeld) {
			w.logger.Debug("stage busy, postponing", "version_id", job.VersionID, "stage", job.Stage)
			return w.reschedule(ctx, job, w.opts.LockRetryDelay)
		}
		if err != nil {
			return w.fail(ctx, job, err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				w.logger.Warn("release stage lock failed", "version_id", job.VersionID, "stage", job.Stage, "err", err)
			}
		}()
	}

	if _, err := w.runner.RunStage(ctx, job); err != nil {
		return w.fail(ctx, job, err)
	}
	return dispositionAck
}

func (w *StageWorker) fail(ctx context.Context, job model.StageJob, err error) disposition {
	if app.IsPermanent(err) {
		w.logger.Error("stage failed permanently", "version_id", job.VersionID, "stage", job.Stage, "err", err)
		return dispositionDead
	}
	job.Attempt++
	if job.Attempt >= w.opts.MaxAttempts {
		w.logger.Error("stage retries exhausted",
			"version_id", job.VersionID, "stage", job.Stage, "attempts", job.Attempt, "err", err)
		return dispositionDead
	}
	delay := backoff.Delay(w.opts.RetryBase, job.Attempt, backoff.DefaultMax)
	w.logger.Warn("stage failed, retrying",
		"version_id", job.VersionID, "stage", job.Stage, "attempt", job.Attempt, "delay", delay, "err", err)
	return w.reschedule(ctx, job, delay)
}

func (w *StageWorker) reschedule(ctx context.Context, job model.StageJob, delay time.Duration) disposition {
	if err := w.retry.EnqueueAfter(ctx, job, delay); err != nil {
		w.logger.Error("reschedule stage job failed", "version_id", job.VersionID, "stage", job.Stage, "err", err)
		return dispositionRequeue
	}
	return dispositionAck
}
