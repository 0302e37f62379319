package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// FilterOp is a comparison operator applied to a document field.
type FilterOp string

const (
	OpEq  FilterOp = "=="
	OpLt  FilterOp = "<"
	OpLte FilterOp = "<="
	OpGt  FilterOp = ">"
	OpGte FilterOp = ">="
)

// Filter matches a single document field against a value. Values compare
// numerically when both sides are numbers, as instants when both sides parse
// as timestamps, and as plain strings otherwise.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query selects documents from a collection. The zero OrderBy means
// creation order, oldest first; adapters must guarantee it so duplicate
// protocol documents resolve in favor of the earliest writer.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Document is one stored entry: an opaque JSON value plus the id the store
// assigned at creation.
type Document struct {
	Collection string
	ID         string
	Data       []byte
}

// Subscription is a cancellable filtered change feed over one collection.
// Close is idempotent and releases the listener registration; after Close
// the Events channel is closed.
type Subscription interface {
	Events() <-chan Document
	Err() <-chan error
	Close()
}

// Adapter is the minimal capability the protocol needs from the document
// store: append, upsert at a known id, query with filters, field update,
// delete, and filtered change subscription. Implementations must be safe
// for concurrent use by many outstanding subscriptions.
type Adapter interface {
	Append(ctx context.Context, collection string, data []byte) (string, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(collection string, q Query) (Subscription, error)
}
