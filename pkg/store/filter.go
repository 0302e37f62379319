package store

import (
	"encoding/json"
	"strings"
	"time"
)

func matchesAll(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, f Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}
	cmp, ok := compareValues(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return cmp == 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

// compareValues compares a decoded document value against a filter value.
// Numbers compare numerically, values that both parse as timestamps compare
// as instants, booleans support equality, and everything else falls back to
// string comparison.
func compareValues(doc, want any) (int, bool) {
	if df, ok := toFloat(doc); ok {
		if wf, ok := toFloat(want); ok {
			switch {
			case df < wf:
				return -1, true
			case df > wf:
				return 1, true
			}
			return 0, true
		}
	}
	if dt, ok := toTime(doc); ok {
		if wt, ok := toTime(want); ok {
			return dt.Compare(wt), true
		}
	}
	if db, ok := doc.(bool); ok {
		if wb, ok := want.(bool); ok {
			if db == wb {
				return 0, true
			}
			return 1, true
		}
	}
	ds, ok := doc.(string)
	ws, ok2 := want.(string)
	if ok && ok2 {
		return strings.Compare(ds, ws), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
