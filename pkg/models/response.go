package models

import "time"

// Response is an AI worker answer read from the ai_responses collection.
// RequestID is the correlation key linking it back to a Request. Confidence
// is conceptually a probability in [0,1] but the wire format may carry
// values outside that range; the codec parses without clamping.
type Response struct {
	ID          string            `json:"id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	RequestID   string            `json:"request_id"`
	DeviceID    string            `json:"device_id"`
	Text        string            `json:"response"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	Success     bool              `json:"success"`

	// Degraded marks a response that was accepted despite one or more
	// optional fields falling back to a documented default. Not persisted.
	Degraded bool `json:"degraded,omitempty"`
}
