package wire

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// wireTimeLayout is the canonical timestamp encoding written by this client:
// RFC3339 UTC with fixed microsecond precision. Decoding accepts far more
// (see the attempt list below) because the worker side is not held to one
// shape.
const wireTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

func rawFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

// tsStoreNative parses the store's native timestamp shape: an object with
// epoch "seconds" and optional "nanos".
func tsStoreNative(raw any) (time.Time, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	secs, ok := rawFloat(m["seconds"])
	if !ok {
		return time.Time{}, false
	}
	var nanos float64
	if v, ok := rawFloat(m["nanos"]); ok {
		nanos = v
	}
	return time.Unix(int64(secs), int64(nanos)).UTC(), true
}

// tsISOFractional parses ISO-8601 strings that carry fractional seconds.
func tsISOFractional(raw any) (time.Time, bool) {
	s, ok := raw.(string)
	if !ok || !strings.Contains(s, ".") {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// tsISOPlain parses ISO-8601 strings without fractional seconds.
func tsISOPlain(raw any) (time.Time, bool) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// tsUnixSeconds parses a numeric Unix epoch in seconds, fractional allowed.
func tsUnixSeconds(raw any) (time.Time, bool) {
	f, ok := rawFloat(raw)
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
}

// decodeTimeStrict parses the canonical client-written forms only. Used for
// request documents where drift means a local bug.
func decodeTimeStrict(raw any) (time.Time, bool) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
