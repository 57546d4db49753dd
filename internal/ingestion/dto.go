package ingestion

// SubmitLeadsRequest is the real-time ingestion payload.
type SubmitLeadsRequest struct {
	Source string          `json:"source" validate:"required,max=200"`
	Leads  []SubmittedLead `json:"leads" validate:"required,min=1,max=1000,dive"`
}

// SubmittedLead is one lead within a real-time submission.
type SubmittedLead struct {
	Email           string         `json:"email" validate:"required,max=320"`
	FirstName       string         `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName        string         `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Phone           string         `json:"phone,omitempty" validate:"omitempty,max=30"`
	VehicleInterest string         `json:"vehicleInterest,omitempty" validate:"omitempty,max=200"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SubmitLeadsResponse reports per-item outcomes for a real-time submission.
type SubmitLeadsResponse struct {
	TotalProcessed int              `json:"totalProcessed"`
	SuccessCount   int              `json:"successCount"`
	FailureCount   int              `json:"failureCount"`
	Duplicate      bool             `json:"duplicate,omitempty"`
	Results        []SubmitLeadItem `json:"results"`
}

// SubmitLeadItem is the outcome for one submitted lead.
type SubmitLeadItem struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
