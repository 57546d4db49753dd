package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"outreach_engine_backend/internal/sequences/domain"
)

// Sequence is a named, ordered outreach definition.
type Sequence struct {
	ID          uuid.UUID
	Name        string
	Description string
	Active      bool
	Steps       []Step
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Step is one step of a sequence. Delay is measured from enrollment time.
type Step struct {
	ID             uuid.UUID
	SequenceID     uuid.UUID
	StepNumber     int
	Delay          time.Duration
	TemplateID     string
	SkipConditions []string
}

// ExecutionKey is the composite identity of one enrollment execution.
type ExecutionKey struct {
	SequenceID uuid.UUID
	LeadID     uuid.UUID
	StepNumber int
}

// Execution is the persisted lifecycle record for one sequence step applied
// to one lead. Terminal rows are never deleted.
type Execution struct {
	SequenceID uuid.UUID
	LeadID     uuid.UUID
	StepNumber int
	FireAt     time.Time
	Status     domain.Status
	MessageID  *string
	LastError  *string
	Attempts   int
	EnqueuedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the composite key of the execution.
func (e Execution) Key() ExecutionKey {
	return ExecutionKey{SequenceID: e.SequenceID, LeadID: e.LeadID, StepNumber: e.StepNumber}
}

// CreateSequenceParams carries a new sequence definition.
type CreateSequenceParams struct {
	Name        string
	Description string
	Active      bool
	Steps       []CreateStepParams
}

// CreateStepParams carries one step of a new sequence.
type CreateStepParams struct {
	StepNumber     int
	Delay          time.Duration
	TemplateID     string
	SkipConditions []string
}

// SequencesRepository is the persistence boundary for sequence definitions
// and enrollment executions.
type SequencesRepository interface {
	CreateSequence(ctx context.Context, params CreateSequenceParams) (Sequence, error)
	GetSequence(ctx context.Context, id uuid.UUID) (Sequence, error)
	GetSequenceByName(ctx context.Context, name string) (Sequence, error)
	ListSequences(ctx context.Context) ([]Sequence, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	InsertScheduled(ctx context.Context, executions []Execution) (int, error)
	GetExecution(ctx context.Context, key ExecutionKey) (Execution, error)
	CancelScheduledForLead(ctx context.Context, sequenceID, leadID uuid.UUID, reason string) (int64, error)

	ClaimDue(ctx context.Context, now time.Time, requeueAfter time.Duration, limit int) ([]Execution, error)
	MarkSent(ctx context.Context, key ExecutionKey, messageID string, attempts int) error
	MarkCancelled(ctx context.Context, key ExecutionKey, reason string) error
	MarkFailed(ctx context.Context, key ExecutionKey, reason string, attempts int) error
	RescheduleRetry(ctx context.Context, key ExecutionKey, fireAt time.Time, reason string, attempts int) error

	AdvanceByMessageID(ctx context.Context, messageID string, target domain.Status) (bool, error)
	FailByMessageID(ctx context.Context, messageID string, reason string) (bool, error)
	MessageExists(ctx context.Context, messageID string) (bool, error)

	CountByStatus(ctx context.Context, sequenceID uuid.UUID) (map[domain.Status]int, error)
	ListUpcoming(ctx context.Context, until time.Time, limit int) ([]Execution, error)

	HasReplySince(ctx context.Context, leadID uuid.UUID, since time.Time) (bool, error)
	HasPriorStepOpened(ctx context.Context, sequenceID, leadID uuid.UUID, beforeStep int) (bool, error)
}
