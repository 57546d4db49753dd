package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/logger"
)

// requeueWindow bounds how long a claimed execution stays invisible. A claim
// whose task was lost (crash between claim and enqueue, redis flush) becomes
// claimable again once its enqueued_at stamp ages past this window.
const requeueWindow = 10 * time.Minute

// DueClaimer is the slice of the sequences repository the dispatcher needs.
type DueClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, requeueAfter time.Duration, limit int) ([]repository.Execution, error)
}

// ExecutionDispatcher periodically claims due executions and hands them to
// the queue. Processing happens in the worker; the dispatcher only moves rows
// from the schedule into the queue.
type ExecutionDispatcher struct {
	client    *asynq.Client
	queue     string
	repo      DueClaimer
	log       *logger.Logger
	interval  time.Duration
	batchSize int
}

func NewExecutionDispatcher(cfg config.SchedulerConfig, repo DueClaimer, log *logger.Logger) (*ExecutionDispatcher, error) {
	opt, queue, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.GetDispatchInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := cfg.GetDispatchBatchSize()
	if batchSize < 1 {
		batchSize = 100
	}

	return &ExecutionDispatcher{
		client:    asynq.NewClient(opt),
		queue:     queue,
		repo:      repo,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}, nil
}

func (d *ExecutionDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *ExecutionDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.Tick(ctx); err != nil {
			d.log.Warn("execution dispatch tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims one batch of due executions and enqueues a task per row.
// Enqueue failures are logged and left alone: the stale claim stamp brings
// the row back after the requeue window.
func (d *ExecutionDispatcher) Tick(ctx context.Context) error {
	executions, err := d.repo.ClaimDue(ctx, time.Now(), requeueWindow, d.batchSize)
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		return nil
	}

	enqueued := 0
	for _, exec := range executions {
		task, err := NewExecutionDueTask(ExecutionDuePayload{
			SequenceID: exec.SequenceID.String(),
			LeadID:     exec.LeadID.String(),
			StepNumber: exec.StepNumber,
		})
		if err != nil {
			d.log.Warn("execution task build failed", "sequence_id", exec.SequenceID, "lead_id", exec.LeadID, "error", err)
			continue
		}

		if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue)); err != nil {
			d.log.Warn("execution enqueue failed", "sequence_id", exec.SequenceID, "lead_id", exec.LeadID, "error", err)
			continue
		}
		enqueued++
	}

	d.log.Info("executions dispatched", "claimed", len(executions), "enqueued", enqueued)
	return nil
}
