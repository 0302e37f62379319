package wire

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"pulserelay/pkg/models"
)

// responseEnvelope is the canonical ai_responses document shape. It is used
// for encoding only (tests and tooling play the worker); decoding goes
// field-by-field because real workers do not reliably produce this shape.
type responseEnvelope struct {
	ID          string            `json:"id,omitempty"`
	Timestamp   string            `json:"timestamp"`
	RequestID   string            `json:"request_id"`
	DeviceID    string            `json:"device_id"`
	Response    string            `json:"response"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	Success     bool              `json:"success"`
}

// EncodeResponse serializes a response into its canonical wire document.
func EncodeResponse(r *models.Response) ([]byte, error) {
	env := responseEnvelope{
		ID:          r.ID,
		Timestamp:   encodeTime(r.Timestamp),
		RequestID:   r.RequestID,
		DeviceID:    r.DeviceID,
		Response:    r.Text,
		Confidence:  r.Confidence,
		Suggestions: r.Suggestions,
		Metadata:    r.Metadata,
		Error:       r.Error,
		Success:     r.Success,
	}
	return json.Marshal(env)
}

// DecodeResponse parses a response document tolerantly, field by field.
// Responses come from an external worker that is not held to one canonical
// encoding, so each flexible field runs an ordered list of parse attempts
// and degrades to a documented fallback instead of failing the document.
// Only the correlation key (request_id) and device_id are hard requirements.
func DecodeResponse(data []byte) (*models.Response, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, decodeErr("", "invalid JSON: %v", err)
	}

	r := &models.Response{}

	if s, ok := raw["id"].(string); ok {
		r.ID = s
	}

	reqID, ok := raw["request_id"].(string)
	if !ok || strings.TrimSpace(reqID) == "" {
		return nil, decodeErr("request_id", "missing or invalid correlation key")
	}
	r.RequestID = reqID

	devID, ok := raw["device_id"].(string)
	if !ok || strings.TrimSpace(devID) == "" {
		return nil, decodeErr("device_id", "missing or invalid device id")
	}
	r.DeviceID = devID

	// timestamp: native store shape, ISO with and without fractional
	// seconds, then numeric epoch; current time on total failure.
	if ts, ok := firstOf(raw["timestamp"],
		tsStoreNative, tsISOFractional, tsISOPlain, tsUnixSeconds); ok {
		r.Timestamp = ts
	} else {
		r.Timestamp = time.Now().UTC()
		r.Degraded = true
	}

	// confidence: float, integer-as-float, numeric string; absent otherwise.
	if c, ok := firstOf(raw["confidence"], confFloat, confInt, confString); ok {
		r.Confidence = &c
	}

	// success: bool, nonzero integer, "true"/"1" string; false + degraded
	// otherwise.
	if s, ok := firstOf(raw["success"], successBool, successInt, successString); ok {
		r.Success = s
	} else {
		r.Success = false
		r.Degraded = true
	}

	// response and error text decode to empty rather than failing.
	if s, ok := raw["response"].(string); ok {
		r.Text = s
	}
	if s, ok := raw["error"].(string); ok {
		r.Error = s
	}

	if list, ok := raw["suggestions"].([]any); ok {
		out := make([]string, 0, len(list))
		for _, el := range list {
			s, ok := el.(string)
			if !ok {
				out = nil
				break
			}
			out = append(out, s)
		}
		r.Suggestions = out
	}

	r.Metadata = decodeMetadata(raw["metadata"])

	return r, nil
}

// decodeMetadata flattens the metadata field into a string map. A flat
// string map passes through; anything else is parsed as generic wire values
// and flattened lossily to display strings.
func decodeMetadata(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	flat := make(map[string]string, len(m))
	allStrings := true
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			allStrings = false
			break
		}
		flat[k] = s
	}
	if allStrings {
		return flat
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		val, err := valueFromAny(v)
		if err != nil {
			continue
		}
		out[k] = val.Display()
	}
	return out
}

func confFloat(raw any) (float64, bool) {
	n, ok := raw.(json.Number)
	if !ok || !strings.ContainsAny(n.String(), ".eE") {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}

func confInt(raw any) (float64, bool) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return float64(i), true
}

func confString(raw any) (float64, bool) {
	s, ok := raw.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func successBool(raw any) (bool, bool) {
	b, ok := raw.(bool)
	return b, ok
}

func successInt(raw any) (bool, bool) {
	n, ok := raw.(json.Number)
	if !ok {
		return false, false
	}
	i, err := n.Int64()
	if err != nil {
		return false, false
	}
	return i != 0, true
}

func successString(raw any) (bool, bool) {
	s, ok := raw.(string)
	if !ok {
		return false, false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1", true
}
