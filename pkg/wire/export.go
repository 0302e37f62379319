package wire

import "time"

// FormatTime renders a timestamp in the canonical wire encoding. Callers
// building filter values or field updates use this so stored timestamps stay
// in one shape.
func FormatTime(t time.Time) string {
	return encodeTime(t)
}
