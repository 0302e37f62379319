package wire

import "fmt"

// DecodeError reports a document field that could not be decoded. Path is
// the wire field name (e.g. "prompt"). For requests any required-field
// failure is fatal to the whole document; for responses only the fields that
// cannot degrade (request_id, device_id) produce one.
type DecodeError struct {
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode field %q: %s", e.Path, e.Reason)
}

func decodeErr(path, format string, args ...any) *DecodeError {
	return &DecodeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
