package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"pulserelay/pkg/logger"
)

// Options tunes the embedded store.
type Options struct {
	// CacheBytes sizes the pebble block cache; zero leaves the default.
	CacheBytes int64
	// SubscriptionBuffer is the per-listener event channel depth.
	SubscriptionBuffer int
}

// Pebble is the document store adapter backed by an embedded pebble
// database. Collections are key prefixes; documents are raw JSON objects.
// All writes are synced. The change hub makes Append/Update visible to
// filtered subscribers in the same process.
type Pebble struct {
	db   *pebble.DB
	path string
	hub  *hub
	seq  atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

var errClosed = errors.New("store closed")

// Open opens (or creates) the store at path.
func Open(path string, opts Options) (*Pebble, error) {
	popts := &pebble.Options{}
	if opts.CacheBytes > 0 {
		c := pebble.NewCache(opts.CacheBytes)
		defer c.Unref()
		popts.Cache = c
	}
	logger.Info("opening_store", "path", path)
	db, err := pebble.Open(path, popts)
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return &Pebble{db: db, path: path, hub: newHub(opts.SubscriptionBuffer)}, nil
}

// Close shuts the store down and tears down every live subscription with a
// transport error.
func (p *Pebble) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.hub.closeAll(errClosed)
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	logger.Info("store_closed", "path", p.path)
	return nil
}

// Ready reports whether the store is open.
func (p *Pebble) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

func docKey(collection, id string) []byte {
	return []byte("doc:" + collection + ":" + id)
}

func docPrefix(collection string) []byte {
	return []byte("doc:" + collection + ":")
}

// newDocID builds an id that sorts by creation order: a zero-padded
// nanosecond timestamp, a per-process tiebreak counter, and a uuid for
// cross-process uniqueness. Pebble iterates keys in sorted order, so a
// collection scan walks documents oldest first without a sort step.
func (p *Pebble) newDocID() string {
	return fmt.Sprintf("%019d-%06d-%s",
		time.Now().UTC().UnixNano(), p.seq.Add(1)%1000000, uuid.NewString())
}

// Append stores a new JSON document and returns the assigned id. Ids are
// opaque to callers but order by insertion, which Query and Subscribe rely
// on for their default ordering.
func (p *Pebble) Append(ctx context.Context, collection string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("append to %s: not a JSON object: %w", collection, err)
	}
	if !p.Ready() {
		return "", errClosed
	}
	id := p.newDocID()
	if err := p.db.Set(docKey(collection, id), data, pebble.Sync); err != nil {
		logger.Error("append_failed", "collection", collection, "doc", id, "error", err)
		return "", fmt.Errorf("append to %s: %w", collection, err)
	}
	documentsAppended.WithLabelValues(collection).Inc()
	logger.Debug("document_appended", "collection", collection, "doc", id)
	p.hub.notify(Document{Collection: collection, ID: id, Data: data}, decoded)
	return id, nil
}

// Put writes a document at a caller-chosen id, creating or replacing it.
// Used for singleton documents that live at a well-known id; bulk inserts
// go through Append so they stay creation-ordered.
func (p *Pebble) Put(ctx context.Context, collection, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("put %s/%s: not a JSON object: %w", collection, id, err)
	}
	if !p.Ready() {
		return errClosed
	}
	if err := p.db.Set(docKey(collection, id), data, pebble.Sync); err != nil {
		logger.Error("put_failed", "collection", collection, "doc", id, "error", err)
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	logger.Debug("document_put", "collection", collection, "doc", id)
	p.hub.notify(Document{Collection: collection, ID: id, Data: data}, decoded)
	return nil
}

// Get returns a single document by id.
func (p *Pebble) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !p.Ready() {
		return Document{}, errClosed
	}
	v, closer, err := p.db.Get(docKey(collection, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	data := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return Document{Collection: collection, ID: id, Data: data}, nil
}

// Query scans a collection and returns documents matching every filter,
// ordered and limited per q. Without an OrderBy the scan returns creation
// order, oldest first; an OrderBy sorts stably on top of that, so equal
// keys keep their insertion order.
func (p *Pebble) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Ready() {
		return nil, errClosed
	}
	prefix := docPrefix(collection)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer iter.Close()

	type hit struct {
		doc    Document
		fields map[string]any
	}
	var hits []hit
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		data := append([]byte(nil), iter.Value()...)
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			logger.Warn("query_skipping_invalid_document",
				"collection", collection, "key", string(iter.Key()), "error", err)
			continue
		}
		if !matchesAll(decoded, q.Filters) {
			continue
		}
		id := string(iter.Key()[len(prefix):])
		hits = append(hits, hit{
			doc:    Document{Collection: collection, ID: id, Data: data},
			fields: decoded,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	if q.OrderBy != "" {
		sort.SliceStable(hits, func(i, j int) bool {
			cmp, ok := compareValues(hits[i].fields[q.OrderBy], hits[j].fields[q.OrderBy])
			if !ok {
				return false
			}
			if q.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}

// Update merges fields into an existing document. A nil field value removes
// the field. Subscribers see the updated document.
func (p *Pebble) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := p.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(doc.Data, &decoded); err != nil {
		return fmt.Errorf("update %s/%s: stored document invalid: %w", collection, id, err)
	}
	for k, v := range fields {
		if v == nil {
			delete(decoded, k)
			continue
		}
		decoded[k] = v
	}
	data, err := json.Marshal(decoded)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := p.db.Set(docKey(collection, id), data, pebble.Sync); err != nil {
		logger.Error("update_failed", "collection", collection, "doc", id, "error", err)
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	logger.Debug("document_updated", "collection", collection, "doc", id)
	p.hub.notify(Document{Collection: collection, ID: id, Data: data}, decoded)
	return nil
}

// Delete removes a document. Deleting a missing document is an error so the
// sweeper can distinguish contention from success.
func (p *Pebble) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Ready() {
		return errClosed
	}
	if _, err := p.Get(ctx, collection, id); err != nil {
		return err
	}
	if err := p.db.Delete(docKey(collection, id), pebble.Sync); err != nil {
		logger.Error("delete_failed", "collection", collection, "doc", id, "error", err)
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	documentsDeleted.WithLabelValues(collection).Inc()
	logger.Debug("document_deleted", "collection", collection, "doc", id)
	return nil
}

// Subscribe registers a filtered listener on a collection. Documents already
// matching at subscribe time are replayed first, in creation order, so a
// response written before the listener attaches is still observed and the
// earliest writer is seen first.
func (p *Pebble) Subscribe(collection string, q Query) (Subscription, error) {
	if !p.Ready() {
		return nil, errClosed
	}
	s := p.hub.add(collection, q)
	existing, err := p.Query(context.Background(), collection, q)
	if err != nil {
		p.hub.close(s, nil)
		return nil, fmt.Errorf("subscribe to %s: %w", collection, err)
	}
	for _, doc := range existing {
		p.hub.deliver(s, doc)
	}
	return s, nil
}
