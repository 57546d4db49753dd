// Package events re-exports the platform event bus and defines the domain
// events exchanged between modules.
package events

import (
	"github.com/google/uuid"

	platformevents "outreach_engine_backend/platform/events"
	"outreach_engine_backend/platform/logger"
)

// Bus is a type alias to the platform event bus interface.
type Bus = platformevents.Bus

// BaseEvent is a type alias to the platform base event.
type BaseEvent = platformevents.BaseEvent

// Event is a type alias to the platform event interface.
type Event = platformevents.Event

// Handler is a type alias to the platform event handler interface.
type Handler = platformevents.Handler

// HandlerFunc is a type alias to the platform handler adapter.
type HandlerFunc = platformevents.HandlerFunc

// InMemoryBus is a type alias to the platform InMemoryBus.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// NewBaseEvent creates a base event stamped with the current time.
func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

// Event names.
const (
	EventArtifactProcessed = "ingestion.artifact.processed"
	EventLeadReplied       = "leads.reply.received"
	EventExecutionSent     = "outreach.execution.sent"
)

// ArtifactProcessed is published after one ingestion artifact completes,
// successfully or with partial errors. Downstream consumers use it to
// trigger abandonment evaluation.
type ArtifactProcessed struct {
	BaseEvent
	ArtifactID string `json:"artifactId"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	Status     string `json:"status"`
}

// EventName returns the event identifier.
func (e ArtifactProcessed) EventName() string { return EventArtifactProcessed }

// LeadReplied is published when an inbound reply is recorded for a lead.
type LeadReplied struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

// EventName returns the event identifier.
func (e LeadReplied) EventName() string { return EventLeadReplied }

// ExecutionSent is published after an outreach step is handed to the transport.
type ExecutionSent struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	StepNumber int       `json:"stepNumber"`
	MessageID  string    `json:"messageId"`
}

// EventName returns the event identifier.
func (e ExecutionSent) EventName() string { return EventExecutionSent }
