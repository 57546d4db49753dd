package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/internal/sequences/service"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/logger"
)

// Worker consumes queued execution tasks and runs them through the executor.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	executor *service.Executor
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, executor *service.Executor, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		executor: executor,
		log:      log,
	}

	mux.HandleFunc(TaskExecutionDue, w.handleExecutionDue)

	return w, nil
}

// handleExecutionDue runs one claimed execution. Retry-on-send-failure is
// handled inside the executor by rescheduling the row, so an error returned
// here means only that infrastructure failed and the task should redeliver.
func (w *Worker) handleExecutionDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseExecutionDuePayload(task)
	if err != nil {
		return err
	}

	sequenceID, err := uuid.Parse(payload.SequenceID)
	if err != nil {
		return err
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	return w.executor.Process(ctx, repository.ExecutionKey{
		SequenceID: sequenceID,
		LeadID:     leadID,
		StepNumber: payload.StepNumber,
	})
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
