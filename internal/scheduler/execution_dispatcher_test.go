package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/logger"
)

type fakeClaimer struct {
	due        []repository.Execution
	claimCalls int
}

func (f *fakeClaimer) ClaimDue(_ context.Context, _ time.Time, _ time.Duration, _ int) ([]repository.Execution, error) {
	f.claimCalls++
	out := f.due
	f.due = nil
	return out, nil
}

func TestDispatcherEnqueuesClaimedExecutions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		RedisURL:          "redis://" + mr.Addr(),
		AsynqQueueName:    "outreach",
		DispatchInterval:  time.Minute,
		DispatchBatchSize: 50,
	}

	exec := repository.Execution{
		SequenceID: uuid.New(),
		LeadID:     uuid.New(),
		StepNumber: 1,
		FireAt:     time.Now().Add(-time.Minute),
		Status:     domain.StatusScheduled,
	}
	claimer := &fakeClaimer{due: []repository.Execution{exec}}

	dispatcher, err := NewExecutionDispatcher(cfg, claimer, logger.New("development"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	if err := dispatcher.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks("outreach")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(pending))
	}
	if pending[0].Type != TaskExecutionDue {
		t.Fatalf("unexpected task type %q", pending[0].Type)
	}

	payload, err := ParseExecutionDuePayload(asynq.NewTask(pending[0].Type, pending[0].Payload))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.SequenceID != exec.SequenceID.String() || payload.StepNumber != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// An empty claim batch enqueues nothing further.
	if err := dispatcher.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	pending, err = inspector.ListPendingTasks("outreach")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected still 1 queued task, got %d", len(pending))
	}
	if claimer.claimCalls != 2 {
		t.Fatalf("expected 2 claim calls, got %d", claimer.claimCalls)
	}
}
