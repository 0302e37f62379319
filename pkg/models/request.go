package models

import (
	"time"
)

// Collection names used in the shared document store. The AI worker reads
// ai_requests and writes ai_responses; everything else is device telemetry.
const (
	ColAIRequests  = "ai_requests"
	ColAIResponses = "ai_responses"
)

// Kind enumerates the supported AI request types.
type Kind string

const (
	KindAnalyzeAnomaly      Kind = "analyze_anomaly"
	KindSuggestHealing      Kind = "suggest_healing"
	KindAnalyzeCorrelations Kind = "analyze_correlations"
	KindGeneralQuery        Kind = "general_query"
	KindDiagnosticAnalysis  Kind = "diagnostic_analysis"
)

// Valid reports whether k is one of the known request kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAnalyzeAnomaly, KindSuggestHealing, KindAnalyzeCorrelations,
		KindGeneralQuery, KindDiagnosticAnalysis:
		return true
	}
	return false
}

// Status is the lifecycle state of a request document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next respects the
// monotonic order pending -> processing -> {completed, failed, timeout}.
// Terminal states admit no further transitions.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next.Terminal()
	case StatusProcessing:
		return next.Terminal()
	}
	return false
}

// Request is an AI analysis request exchanged through the ai_requests
// collection. ID is assigned by the store on creation and is empty before.
type Request struct {
	ID          string            `json:"id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Kind        Kind              `json:"request_type"`
	Status      Status            `json:"status"`
	DeviceID    string            `json:"device_id"`
	Prompt      string            `json:"prompt"`
	Context     map[string]string `json:"context,omitempty"`
	ResponseID  string            `json:"response_id,omitempty"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
	RetryCount  int               `json:"retry_count"`
}

// NewRequest builds an unsubmitted request with status pending and an
// absolute expiration of now + window.
func NewRequest(kind Kind, prompt, deviceID string, window time.Duration) *Request {
	now := time.Now().UTC()
	return &Request{
		Timestamp: now,
		Kind:      kind,
		Status:    StatusPending,
		DeviceID:  deviceID,
		Prompt:    prompt,
		ExpiresAt: now.Add(window),
	}
}
