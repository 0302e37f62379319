package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type valueKind int

const (
	valueNull valueKind = iota
	valueString
	valueNumber
	valueBool
	valueList
	valueObject
)

// Value is a tagged union over the JSON-like shapes a loosely specified
// metadata field may carry: string, number, boolean, null, list, or
// string-keyed object. It exists to flatten unknown metadata into display
// strings; it is never round-tripped back to structured form.
type Value struct {
	kind valueKind
	str  string
	num  float64
	b    bool
	list []Value
	obj  map[string]Value
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{kind: valueNull}, nil
	case string:
		return Value{kind: valueString, str: t}, nil
	case bool:
		return Value{kind: valueBool, b: t}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Value{kind: valueNumber, num: f}, nil
	case float64:
		return Value{kind: valueNumber, num: t}, nil
	case []any:
		out := Value{kind: valueList, list: make([]Value, 0, len(t))}
		for _, el := range t {
			ev, err := valueFromAny(el)
			if err != nil {
				return Value{}, err
			}
			out.list = append(out.list, ev)
		}
		return out, nil
	case map[string]any:
		out := Value{kind: valueObject, obj: make(map[string]Value, len(t))}
		for k, el := range t {
			ev, err := valueFromAny(el)
			if err != nil {
				return Value{}, err
			}
			out.obj[k] = ev
		}
		return out, nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// Display flattens the value to a human-readable string: numbers in plain
// decimal form, booleans as "true"/"false", null as "null", lists as
// comma-joined elements, objects as comma-joined "key: value" pairs with
// keys sorted for stable output. Lossy and display-oriented only.
func (v Value) Display() string {
	switch v.kind {
	case valueNull:
		return "null"
	case valueString:
		return v.str
	case valueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case valueBool:
		return strconv.FormatBool(v.b)
	case valueList:
		parts := make([]string, 0, len(v.list))
		for _, el := range v.list {
			parts = append(parts, el.Display())
		}
		return strings.Join(parts, ", ")
	case valueObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+v.obj[k].Display())
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
