package transport

import (
	"time"

	"github.com/google/uuid"
)

// CreateSequenceRequest defines a new outreach sequence with its steps.
type CreateSequenceRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=200"`
	Description string              `json:"description" validate:"max=2000"`
	Active      bool                `json:"active"`
	Steps       []CreateStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// CreateStepRequest is one step of a CreateSequenceRequest. The delay is
// measured from enrollment time, days and hours combined.
type CreateStepRequest struct {
	StepNumber     int      `json:"stepNumber" validate:"required,min=1"`
	TemplateID     string   `json:"templateId" validate:"required"`
	DelayDays      int      `json:"delayDays" validate:"min=0"`
	DelayHours     int      `json:"delayHours" validate:"min=0"`
	SkipConditions []string `json:"skipConditions"`
}

// Delay returns the combined step delay.
func (r CreateStepRequest) Delay() time.Duration {
	return time.Duration(r.DelayDays)*24*time.Hour + time.Duration(r.DelayHours)*time.Hour
}

// StepResponse is the outward view of one sequence step.
type StepResponse struct {
	StepNumber     int      `json:"stepNumber"`
	TemplateID     string   `json:"templateId"`
	DelaySeconds   int64    `json:"delaySeconds"`
	SkipConditions []string `json:"skipConditions,omitempty"`
}

// SequenceResponse is the outward view of a sequence definition.
type SequenceResponse struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Steps       []StepResponse `json:"steps"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// SetActiveRequest toggles a sequence between active and paused.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// EnrollRequest enrolls leads into a sequence.
type EnrollRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=500"`
}

// EnrollResult is the per-lead outcome of an enrollment request.
type EnrollResult struct {
	LeadID            uuid.UUID `json:"leadId"`
	Enrolled          bool      `json:"enrolled"`
	ExecutionsCreated int       `json:"executionsCreated"`
	Error             string    `json:"error,omitempty"`
}

// EnrollResponse is the full outcome of an enrollment request.
type EnrollResponse struct {
	SequenceID uuid.UUID      `json:"sequenceId"`
	Results    []EnrollResult `json:"results"`
}

// UnenrollRequest cancels pending executions for leads in a sequence.
type UnenrollRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=500"`
	Reason  string      `json:"reason" validate:"max=500"`
}

// UnenrollResponse reports how many executions were cancelled.
type UnenrollResponse struct {
	SequenceID uuid.UUID `json:"sequenceId"`
	Cancelled  int64     `json:"cancelled"`
}

// StatsResponse carries derived per-status execution counts for a sequence.
type StatsResponse struct {
	SequenceID uuid.UUID      `json:"sequenceId"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
}

// UpcomingExecution is one scheduled execution inside the requested horizon.
type UpcomingExecution struct {
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	StepNumber int       `json:"stepNumber"`
	FireAt     time.Time `json:"fireAt"`
	Attempts   int       `json:"attempts"`
}

// TransportCallbackRequest is the delivery-event webhook payload.
type TransportCallbackRequest struct {
	MessageID string    `json:"messageId" validate:"required"`
	Event     string    `json:"event" validate:"required,oneof=delivered opened clicked bounced"`
	Timestamp time.Time `json:"timestamp"`
}
