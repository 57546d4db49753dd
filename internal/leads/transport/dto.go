package transport

import (
	"time"

	"github.com/google/uuid"
)

// LeadResponse is the decrypted, outward-facing view of a stored lead.
type LeadResponse struct {
	ID             uuid.UUID      `json:"id"`
	IdentityKey    string         `json:"identityKey"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	FirstName      string         `json:"firstName,omitempty"`
	LastName       string         `json:"lastName,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	Source         string         `json:"source,omitempty"`
	SessionKey     string         `json:"sessionKey,omitempty"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	Abandoned      bool           `json:"abandoned"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ListLeadsRequest carries the lead listing filters.
type ListLeadsRequest struct {
	Source        string `form:"source"`
	OnlyAbandoned bool   `form:"abandoned"`
	Offset        int    `form:"offset" validate:"omitempty,min=0"`
	Limit         int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

// RecordReplyRequest records an inbound reply for a lead.
type RecordReplyRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// ReplyResponse confirms a recorded reply.
type ReplyResponse struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"leadId"`
	ReceivedAt time.Time `json:"receivedAt"`
}
