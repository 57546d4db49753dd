package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lead is the stored lead/visitor entity. Contact fields are encrypted at
// rest; Attributes is an opaque bag the engine never interprets.
type Lead struct {
	ID             uuid.UUID
	IdentityKey    string
	EmailEnc       string
	PhoneEnc       string
	FirstName      string
	LastName       string
	Attributes     map[string]any
	Source         string
	SessionKey     string
	LastActivityAt time.Time
	Abandoned      bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpsertLeadParams carries one sighting of a lead from any ingestion path.
type UpsertLeadParams struct {
	IdentityKey string
	EmailEnc    string
	PhoneEnc    string
	FirstName   string
	LastName    string
	Attributes  map[string]any
	Source      string
	SessionKey  string
}

// ListLeadsParams defines filters for listing leads.
type ListLeadsParams struct {
	Source        string
	OnlyAbandoned bool
	Offset        int
	Limit         int
}

// Reply is an inbound reply recorded against a lead.
type Reply struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Body       string
	ReceivedAt time.Time
}

// LeadsRepository is the persistence boundary for leads and visitors.
type LeadsRepository interface {
	Upsert(ctx context.Context, params UpsertLeadParams) (Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	GetByIdentityKey(ctx context.Context, identityKey string) (Lead, error)
	List(ctx context.Context, params ListLeadsParams) ([]Lead, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecordReply(ctx context.Context, leadID uuid.UUID, body string) (Reply, error)
}
