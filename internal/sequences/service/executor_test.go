package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_engine_backend/internal/email"
	"outreach_engine_backend/internal/events"
	leadstransport "outreach_engine_backend/internal/leads/transport"
	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/logger"
)

type fakeSender struct {
	failures int
	calls    int
	sent     []email.Message
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (email.SendResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return email.SendResult{}, errors.New("connection refused")
	}
	f.sent = append(f.sent, msg)
	return email.SendResult{MessageID: fmt.Sprintf("msg-%d", f.calls)}, nil
}

type executorFixture struct {
	repo     *fakeSequencesRepo
	sender   *fakeSender
	executor *Executor
	svc      *Service
	seqID    uuid.UUID
	leadID   uuid.UUID
}

func newExecutorFixture(t *testing.T, failures int, steps []CreateStepInput) *executorFixture {
	t.Helper()

	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	stats := cache.New[map[domain.Status]int](time.Second)

	svc := New(repo, leads, stats, bus, log)
	sender := &fakeSender{failures: failures}
	executor := NewExecutor(repo, leads, sender, bus, log, ExecutorConfig{
		MaxAttempts: 3,
		BackoffBase: 5 * time.Minute,
		SendTimeout: time.Second,
	})

	seq, err := svc.Create(context.Background(), CreateSequenceInput{Name: "nurture", Active: true, Steps: steps})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	return &executorFixture{repo: repo, sender: sender, executor: executor, svc: svc, seqID: seq.ID, leadID: leadID}
}

func (fx *executorFixture) key(step int) repository.ExecutionKey {
	return repository.ExecutionKey{SequenceID: fx.seqID, LeadID: fx.leadID, StepNumber: step}
}

func twoSteps() []CreateStepInput {
	return []CreateStepInput{
		{StepNumber: 1, TemplateID: "intro", Delay: 0},
		{StepNumber: 2, TemplateID: "follow_up", Delay: 48 * time.Hour},
	}
}

func TestOnlyDueStepIsClaimed(t *testing.T) {
	fx := newExecutorFixture(t, 0, twoSteps())

	due, err := fx.repo.ClaimDue(context.Background(), time.Now(), 10*time.Minute, 100)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(due) != 1 || due[0].StepNumber != 1 {
		t.Fatalf("expected only step 1 due, got %+v", due)
	}

	// The claim stamp keeps a second claimer from double-pulling the row.
	again, err := fx.repo.ClaimDue(context.Background(), time.Now(), 10*time.Minute, 100)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no rows on second claim, got %d", len(again))
	}
}

func TestProcessSendsAndMarksSent(t *testing.T) {
	fx := newExecutorFixture(t, 0, twoSteps())

	if err := fx.executor.Process(context.Background(), fx.key(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	exec, err := fx.repo.GetExecution(context.Background(), fx.key(1))
	if err != nil {
		t.Fatalf("execution: %v", err)
	}
	if exec.Status != domain.StatusSent {
		t.Fatalf("expected sent, got %s", exec.Status)
	}
	if exec.MessageID == nil || *exec.MessageID == "" {
		t.Fatal("sent execution must hold a message id")
	}
	if exec.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", exec.Attempts)
	}

	step2, _ := fx.repo.GetExecution(context.Background(), fx.key(2))
	if step2.Status != domain.StatusScheduled {
		t.Fatalf("step 2 must stay scheduled, got %s", step2.Status)
	}

	if len(fx.sender.sent) != 1 || fx.sender.sent[0].To != "jane@example.com" {
		t.Fatalf("unexpected sends: %+v", fx.sender.sent)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	fx := newExecutorFixture(t, 0, twoSteps())

	if err := fx.executor.Process(context.Background(), fx.key(1)); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := fx.executor.Process(context.Background(), fx.key(1)); err != nil {
		t.Fatalf("duplicate process: %v", err)
	}
	if fx.sender.calls != 1 {
		t.Fatalf("duplicate task delivery must not resend, got %d sends", fx.sender.calls)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	fx := newExecutorFixture(t, 2, twoSteps())
	key := fx.key(1)

	// First two attempts fail and reschedule with growing backoff.
	start := time.Now()
	if err := fx.executor.Process(context.Background(), key); err != nil {
		t.Fatalf("attempt 1: %v", err)
	}
	exec, _ := fx.repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusScheduled || exec.Attempts != 1 {
		t.Fatalf("after attempt 1: status=%s attempts=%d", exec.Status, exec.Attempts)
	}
	if exec.FireAt.Before(start.Add(4 * time.Minute)) {
		t.Fatalf("first backoff too short: %v", exec.FireAt.Sub(start))
	}
	if exec.LastError == nil || !strings.Contains(*exec.LastError, "connection refused") {
		t.Fatalf("expected transport error recorded, got %v", exec.LastError)
	}

	if err := fx.executor.Process(context.Background(), key); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
	exec, _ = fx.repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusScheduled || exec.Attempts != 2 {
		t.Fatalf("after attempt 2: status=%s attempts=%d", exec.Status, exec.Attempts)
	}
	if exec.FireAt.Before(start.Add(9 * time.Minute)) {
		t.Fatalf("second backoff too short: %v", exec.FireAt.Sub(start))
	}

	// Third attempt succeeds.
	if err := fx.executor.Process(context.Background(), key); err != nil {
		t.Fatalf("attempt 3: %v", err)
	}
	exec, _ = fx.repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusSent {
		t.Fatalf("expected sent after third attempt, got %s", exec.Status)
	}
	if exec.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", exec.Attempts)
	}
}

func TestFailsAtMaxAttempts(t *testing.T) {
	fx := newExecutorFixture(t, 10, twoSteps())
	key := fx.key(1)

	for i := 0; i < 3; i++ {
		if err := fx.executor.Process(context.Background(), key); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	exec, _ := fx.repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusFailed {
		t.Fatalf("expected failed at max attempts, got %s", exec.Status)
	}
	if exec.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", exec.Attempts)
	}
}

func TestSkipIfRespondedCancels(t *testing.T) {
	steps := []CreateStepInput{
		{StepNumber: 1, TemplateID: "intro", Delay: 0},
		{StepNumber: 2, TemplateID: "follow_up", Delay: 0, SkipConditions: []string{SkipIfResponded}},
	}
	fx := newExecutorFixture(t, 0, steps)

	fx.repo.replies[fx.leadID] = []time.Time{time.Now()}

	if err := fx.executor.Process(context.Background(), fx.key(2)); err != nil {
		t.Fatalf("process: %v", err)
	}

	exec, _ := fx.repo.GetExecution(context.Background(), fx.key(2))
	if exec.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", exec.Status)
	}
	if exec.LastError == nil || *exec.LastError != "lead replied" {
		t.Fatalf("expected skip reason recorded, got %v", exec.LastError)
	}
	if fx.sender.calls != 0 {
		t.Fatalf("skipped execution must not send, got %d sends", fx.sender.calls)
	}
}

func TestSkipIfOpenedCancels(t *testing.T) {
	steps := []CreateStepInput{
		{StepNumber: 1, TemplateID: "intro", Delay: 0},
		{StepNumber: 2, TemplateID: "follow_up", Delay: 0, SkipConditions: []string{SkipIfOpened}},
	}
	fx := newExecutorFixture(t, 0, steps)

	if err := fx.executor.Process(context.Background(), fx.key(1)); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	exec, _ := fx.repo.GetExecution(context.Background(), fx.key(1))
	if _, err := fx.repo.AdvanceByMessageID(context.Background(), *exec.MessageID, domain.StatusOpened); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if err := fx.executor.Process(context.Background(), fx.key(2)); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	step2, _ := fx.repo.GetExecution(context.Background(), fx.key(2))
	if step2.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", step2.Status)
	}
}

func TestPausedSequenceLeavesExecutionScheduled(t *testing.T) {
	fx := newExecutorFixture(t, 0, twoSteps())

	if err := fx.svc.SetActive(context.Background(), fx.seqID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := fx.executor.Process(context.Background(), fx.key(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	exec, _ := fx.repo.GetExecution(context.Background(), fx.key(1))
	if exec.Status != domain.StatusScheduled {
		t.Fatalf("paused sequence must not resolve the execution, got %s", exec.Status)
	}
	if fx.sender.calls != 0 {
		t.Fatal("paused sequence must not send")
	}
}
