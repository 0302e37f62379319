package mailbox

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that no valid response was observed before the
	// per-call deadline. Terminal; the caller decides whether to retry.
	ErrTimeout = errors.New("no response before deadline")

	// ErrCancelled reports that Cancel resolved the request before a
	// response or deadline did.
	ErrCancelled = errors.New("request cancelled")

	// ErrClosed reports that the mailbox was shut down while the request
	// was outstanding.
	ErrClosed = errors.New("mailbox closed")
)

// StoreError wraps a transport-level failure of the document store (write,
// query, or subscription). It is surfaced to the caller and never retried by
// the mailbox itself.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
