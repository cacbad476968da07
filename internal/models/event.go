package models

// Resource and status values that trigger processing.
const (
	ResourceUpload = "upload"
	StatusPending  = "pending"
)

// InboundEvent is the envelope published on the action topic.
type InboundEvent struct {
	Topic      string       `json:"topic"`
	Originator string       `json:"originator"`
	Timestamp  string       `json:"timestamp"`
	MimeType   string       `json:"mime-type"`
	Payload    EventPayload `json:"payload"`
}

// EventPayload describes the uploaded workbook. Unknown fields are ignored.
type EventPayload struct {
	ID             string `json:"id"`
	Resource       string `json:"resource"`
	ObjectKey      string `json:"objectKey"`
	Status         string `json:"status"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Triggers reports whether the event asks for a batch to be processed.
func (e *InboundEvent) Triggers() bool {
	return e.Payload.Resource == ResourceUpload && e.Payload.Status == StatusPending
}
