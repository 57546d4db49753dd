package email

import "context"

// Message is one rendered outreach email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// SendResult carries the transport-assigned identifier of a delivered message.
// Delivery callbacks reference executions by this ID.
type SendResult struct {
	MessageID string
}

// Sender delivers a rendered message. Implementations must honor the context
// deadline so a slow transport cannot stall the dispatch worker.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}
