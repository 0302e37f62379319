package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pulserelay/pkg/models"
)

// requestEnvelope is the ai_requests document shape. Field names follow
// the document contract shared with the worker.
type requestEnvelope struct {
	ID          string            `json:"id,omitempty"`
	Timestamp   string            `json:"timestamp"`
	RequestType string            `json:"request_type"`
	Status      string            `json:"status"`
	DeviceID    string            `json:"device_id"`
	Prompt      string            `json:"prompt"`
	Context     map[string]string `json:"context,omitempty"`
	ResponseID  string            `json:"response_id,omitempty"`
	ProcessedAt string            `json:"processed_at,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
	ExpiresAt   string            `json:"expires_at"`
	RetryCount  int               `json:"retry_count"`
}

// EncodeRequest serializes a request into its canonical wire document.
func EncodeRequest(r *models.Request) ([]byte, error) {
	if !r.Kind.Valid() {
		return nil, fmt.Errorf("invalid request kind %q", r.Kind)
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("invalid request status %q", r.Status)
	}
	env := requestEnvelope{
		ID:          r.ID,
		Timestamp:   encodeTime(r.Timestamp),
		RequestType: string(r.Kind),
		Status:      string(r.Status),
		DeviceID:    r.DeviceID,
		Prompt:      r.Prompt,
		Context:     r.Context,
		ResponseID:  r.ResponseID,
		ExpiresAt:   encodeTime(r.ExpiresAt),
		RetryCount:  r.RetryCount,
	}
	if r.ProcessedAt != nil {
		env.ProcessedAt = encodeTime(*r.ProcessedAt)
	}
	if r.CompletedAt != nil {
		env.CompletedAt = encodeTime(*r.CompletedAt)
	}
	return json.Marshal(env)
}

// DecodeRequest parses a request document strictly: requests are written by
// this client alone, so any missing or mistyped required field fails the
// whole document with the offending field path. No partial request is ever
// returned. Optional fields: context, response_id, processed_at,
// completed_at.
func DecodeRequest(data []byte) (*models.Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, decodeErr("", "invalid JSON: %v", err)
	}

	r := &models.Request{}

	if v, ok := raw["id"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, decodeErr("id", "expected string, got %T", v)
		}
		r.ID = s
	}

	ts, err := requiredTime(raw, "timestamp")
	if err != nil {
		return nil, err
	}
	r.Timestamp = ts

	kindStr, err := requiredString(raw, "request_type")
	if err != nil {
		return nil, err
	}
	r.Kind = models.Kind(kindStr)
	if !r.Kind.Valid() {
		return nil, decodeErr("request_type", "unknown request type %q", kindStr)
	}

	statusStr, err := requiredString(raw, "status")
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(statusStr)
	if !r.Status.Valid() {
		return nil, decodeErr("status", "unknown status %q", statusStr)
	}

	if r.DeviceID, err = requiredString(raw, "device_id"); err != nil {
		return nil, err
	}
	if r.Prompt, err = requiredString(raw, "prompt"); err != nil {
		return nil, err
	}
	if r.ExpiresAt, err = requiredTime(raw, "expires_at"); err != nil {
		return nil, err
	}

	rc, ok := raw["retry_count"]
	if !ok {
		return nil, decodeErr("retry_count", "missing required field")
	}
	rcf, ok := rc.(float64)
	if !ok || rcf != float64(int(rcf)) {
		return nil, decodeErr("retry_count", "expected integer, got %v", rc)
	}
	r.RetryCount = int(rcf)

	if v, ok := raw["context"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, decodeErr("context", "expected string map, got %T", v)
		}
		ctx := make(map[string]string, len(m))
		for k, el := range m {
			s, ok := el.(string)
			if !ok {
				return nil, decodeErr("context."+k, "expected string, got %T", el)
			}
			ctx[k] = s
		}
		r.Context = ctx
	}

	if v, ok := raw["response_id"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, decodeErr("response_id", "expected string, got %T", v)
		}
		r.ResponseID = s
	}
	if t, derr := optionalTime(raw, "processed_at"); derr != nil {
		return nil, derr
	} else if t != nil {
		r.ProcessedAt = t
	}
	if t, derr := optionalTime(raw, "completed_at"); derr != nil {
		return nil, derr
	} else if t != nil {
		r.CompletedAt = t
	}

	return r, nil
}

func requiredString(raw map[string]any, path string) (string, error) {
	v, ok := raw[path]
	if !ok || v == nil {
		return "", decodeErr(path, "missing required field")
	}
	s, ok := v.(string)
	if !ok {
		return "", decodeErr(path, "expected string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", decodeErr(path, "empty required field")
	}
	return s, nil
}

func requiredTime(raw map[string]any, path string) (time.Time, error) {
	v, ok := raw[path]
	if !ok || v == nil {
		return time.Time{}, decodeErr(path, "missing required field")
	}
	t, ok := decodeTimeStrict(v)
	if !ok {
		return time.Time{}, decodeErr(path, "invalid timestamp %v", v)
	}
	return t, nil
}

func optionalTime(raw map[string]any, path string) (*time.Time, error) {
	v, ok := raw[path]
	if !ok || v == nil {
		return nil, nil
	}
	t, ok := decodeTimeStrict(v)
	if !ok {
		return nil, decodeErr(path, "invalid timestamp %v", v)
	}
	return &t, nil
}
