package wire

// firstOf runs an ordered list of independent, side-effect-free parse
// attempts against a raw JSON value and returns the first success. Tolerant
// multi-shape decoding is expressed as one attempt list per field instead of
// nested type switches.
func firstOf[T any](raw any, attempts ...func(any) (T, bool)) (T, bool) {
	for _, attempt := range attempts {
		if v, ok := attempt(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
