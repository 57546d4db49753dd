package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_engine_backend/internal/email"
	"outreach_engine_backend/internal/events"
	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/platform/apperr"
	"outreach_engine_backend/platform/logger"
)

// ExecutorConfig tunes retry and transport behavior of the executor.
type ExecutorConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	SendTimeout time.Duration
}

// Executor processes one due execution end to end: skip-condition
// evaluation, template rendering, transport send, and the resulting state
// transition. It is invoked by the queue worker, so it must tolerate
// duplicate deliveries of the same execution key.
type Executor struct {
	repo   repository.SequencesRepository
	leads  LeadReader
	sender email.Sender
	bus    events.Bus
	log    *logger.Logger
	cfg    ExecutorConfig
	now    func() time.Time
}

func NewExecutor(repo repository.SequencesRepository, leads LeadReader, sender email.Sender, bus events.Bus, log *logger.Logger, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Executor{
		repo:   repo,
		leads:  leads,
		sender: sender,
		bus:    bus,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Process handles one claimed execution. A nil return acknowledges the task;
// errors are returned only for transient infrastructure failures so the
// queue redelivers.
func (e *Executor) Process(ctx context.Context, key repository.ExecutionKey) error {
	exec, err := e.repo.GetExecution(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn("execution vanished", "ref", refOf(key))
		return nil
	}
	if err != nil {
		return err
	}
	if exec.Status != domain.StatusScheduled {
		// Already resolved by an earlier delivery of this task.
		return nil
	}

	seq, err := e.repo.GetSequence(ctx, exec.SequenceID)
	if errors.Is(err, repository.ErrNotFound) {
		return e.repo.MarkCancelled(ctx, key, "sequence deleted")
	}
	if err != nil {
		return err
	}
	if !seq.Active {
		// Paused between claim and processing. Leave the row scheduled; the
		// stale enqueued_at stamp makes it claimable again after the requeue
		// window, once the sequence resumes.
		return nil
	}

	var step *repository.Step
	for i := range seq.Steps {
		if seq.Steps[i].StepNumber == exec.StepNumber {
			step = &seq.Steps[i]
			break
		}
	}
	if step == nil {
		return e.repo.MarkCancelled(ctx, key, fmt.Sprintf("step %d no longer defined", exec.StepNumber))
	}

	skipped, reason, err := e.shouldSkip(ctx, exec, *step)
	if err != nil {
		return err
	}
	if skipped {
		if err := e.repo.MarkCancelled(ctx, key, reason); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		e.log.Info("execution skipped", "ref", refOf(key), "reason", reason)
		return nil
	}

	lead, err := e.leads.GetByID(ctx, exec.LeadID)
	if apperr.Is(err, apperr.KindNotFound) {
		return ignoreResolved(e.repo.MarkCancelled(ctx, key, "lead not found"))
	}
	if err != nil {
		return err
	}
	if !lead.Active || lead.Email == "" {
		return ignoreResolved(e.repo.MarkCancelled(ctx, key, "lead not contactable"))
	}

	subject, body, err := email.Render(step.TemplateID, email.TemplateData{
		FirstName:       lead.FirstName,
		LastName:        lead.LastName,
		VehicleInterest: stringAttr(lead.Attributes, "vehicleInterest"),
		Source:          lead.Source,
	})
	if err != nil {
		// A broken template will not fix itself on retry.
		return ignoreResolved(e.repo.MarkFailed(ctx, key, err.Error(), exec.Attempts+1))
	}

	attempt := exec.Attempts + 1
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	result, sendErr := e.sender.Send(sctx, email.Message{To: lead.Email, Subject: subject, HTML: body})
	cancel()

	if sendErr != nil {
		return e.handleSendFailure(ctx, key, attempt, sendErr)
	}

	if err := e.repo.MarkSent(ctx, key, result.MessageID, attempt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Concurrently cancelled after the send went out. The callback
			// path will simply find no scheduled row to advance.
			return nil
		}
		return err
	}

	e.bus.Publish(ctx, events.ExecutionSent{
		BaseEvent:  events.NewBaseEvent(),
		SequenceID: key.SequenceID,
		LeadID:     key.LeadID,
		StepNumber: key.StepNumber,
		MessageID:  result.MessageID,
	})
	e.log.Info("execution sent", "ref", refOf(key), "message_id", result.MessageID, "attempt", attempt)
	return nil
}

// shouldSkip evaluates the step's skip conditions against engagement recorded
// since enrollment.
func (e *Executor) shouldSkip(ctx context.Context, exec repository.Execution, step repository.Step) (bool, string, error) {
	for _, cond := range step.SkipConditions {
		switch cond {
		case SkipIfResponded:
			replied, err := e.repo.HasReplySince(ctx, exec.LeadID, exec.CreatedAt)
			if err != nil {
				return false, "", err
			}
			if replied {
				return true, "lead replied", nil
			}
		case SkipIfOpened:
			opened, err := e.repo.HasPriorStepOpened(ctx, exec.SequenceID, exec.LeadID, exec.StepNumber)
			if err != nil {
				return false, "", err
			}
			if opened {
				return true, "prior step opened", nil
			}
		}
	}
	return false, "", nil
}

func (e *Executor) handleSendFailure(ctx context.Context, key repository.ExecutionKey, attempt int, sendErr error) error {
	e.log.TransportError(refOf(key), attempt, sendErr)

	if attempt >= e.cfg.MaxAttempts {
		return ignoreResolved(e.repo.MarkFailed(ctx, key, sendErr.Error(), attempt))
	}

	backoff := e.cfg.BackoffBase * (1 << (attempt - 1))
	fireAt := e.now().Add(backoff)
	return ignoreResolved(e.repo.RescheduleRetry(ctx, key, fireAt, sendErr.Error(), attempt))
}

// ignoreResolved swallows the guarded-update miss that occurs when another
// actor resolved the execution first.
func ignoreResolved(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func refOf(key repository.ExecutionKey) string {
	return fmt.Sprintf("%s/%s/%d", key.SequenceID, key.LeadID, key.StepNumber)
}

func stringAttr(attrs map[string]any, key string) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}
