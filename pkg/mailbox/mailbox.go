// Package mailbox implements the asynchronous request/response correlation
// protocol spoken with the AI worker through the shared document store: the
// client appends a request document, the worker eventually appends a
// response document carrying the request id, and the mailbox matches the two
// under a per-call deadline.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulserelay/pkg/logger"
	"pulserelay/pkg/models"
	"pulserelay/pkg/store"
	"pulserelay/pkg/wire"
)

// Config carries the externally supplied protocol constants.
type Config struct {
	// RequestTimeout bounds a single Await call (default 60s).
	RequestTimeout time.Duration
	// ExpirationWindow is the absolute lifetime written into requests for
	// the sweeper to act on (default 10m).
	ExpirationWindow time.Duration
	// MaxRetries is recorded on requests; the mailbox never resubmits.
	MaxRetries int
	// FetchLimit caps listing queries (default 100).
	FetchLimit int
	// DeviceID stamps requests that do not carry their own.
	DeviceID string
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ExpirationWindow <= 0 {
		c.ExpirationWindow = 10 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = 100
	}
	if c.DeviceID == "" {
		c.DeviceID = "pulserelay"
	}
	return c
}

// Mailbox tracks outstanding requests and resolves each exactly once with a
// response, a timeout, a cancellation, or a transport error.
type Mailbox struct {
	ads store.Adapter
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// entry is one outstanding await. Exactly one of {document arriving,
// deadline firing, explicit cancel, transport error} wins the race to
// resolve it; the losers observe resolved and no-op.
type entry struct {
	id   string
	done chan struct{}

	mu       sync.Mutex
	resolved bool
	resp     *models.Response
	err      error
	sub      store.Subscription
}

// New builds a mailbox over the given store adapter.
func New(ads store.Adapter, cfg Config) *Mailbox {
	return &Mailbox{
		ads:     ads,
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
	}
}

// Config returns the effective configuration after defaulting.
func (m *Mailbox) Config() Config { return m.cfg }

// Submit persists a new request with status pending and returns the
// store-assigned id. Transport failures surface as *StoreError.
func (m *Mailbox) Submit(ctx context.Context, req *models.Request) (string, error) {
	if req == nil {
		return "", errors.New("nil request")
	}
	if !req.Kind.Valid() {
		return "", fmt.Errorf("invalid request kind %q", req.Kind)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("empty prompt")
	}

	now := time.Now().UTC()
	if req.Timestamp.IsZero() {
		req.Timestamp = now
	}
	req.Status = models.StatusPending
	if req.DeviceID == "" {
		req.DeviceID = m.cfg.DeviceID
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = now.Add(m.cfg.ExpirationWindow)
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return "", err
	}
	id, err := m.ads.Append(ctx, models.ColAIRequests, data)
	if err != nil {
		return "", &StoreError{Op: "append", Err: err}
	}
	req.ID = id
	requestsSubmitted.Inc()
	logger.Info("request_submitted", "request", id, "kind", string(req.Kind), "device", req.DeviceID)
	return id, nil
}

// Await blocks until the request resolves: a decodable response with the
// matching correlation key arrives, the deadline elapses (ErrTimeout), the
// request is cancelled (ErrCancelled), or the subscription reports a
// transport error (*StoreError). A response document that fails tolerant
// decoding fails the await with the *wire.DecodeError rather than being
// skipped; correlation id uniqueness makes waiting for a corrected document
// pointless. timeout <= 0 uses the configured default. Concurrent Awaits on
// the same id share one resolution and all observe the same result.
func (m *Mailbox) Await(ctx context.Context, requestID string, timeout time.Duration) (*models.Response, error) {
	if requestID == "" {
		return nil, errors.New("empty request id")
	}
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}

	e, fresh, err := m.register(requestID)
	if err != nil {
		return nil, err
	}
	if fresh {
		m.attach(e)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		m.resolve(e, nil, ErrTimeout)
	case <-ctx.Done():
		m.resolve(e, nil, ctx.Err())
	}
	<-e.done

	e.mu.Lock()
	resp, rerr := e.resp, e.err
	e.mu.Unlock()
	return resp, rerr
}

func (m *Mailbox) register(requestID string) (*entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	if e, ok := m.entries[requestID]; ok {
		return e, false, nil
	}
	e := &entry{id: requestID, done: make(chan struct{})}
	m.entries[requestID] = e
	return e, true, nil
}

// attach opens the filtered response subscription for an entry and starts
// the pump that races it against the deadline.
func (m *Mailbox) attach(e *entry) {
	sub, err := m.ads.Subscribe(models.ColAIResponses, store.Query{
		Filters: []store.Filter{{Field: "request_id", Op: store.OpEq, Value: e.id}},
		Limit:   1,
	})
	if err != nil {
		m.resolve(e, nil, &StoreError{Op: "subscribe", Err: err})
		return
	}

	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		sub.Close()
		return
	}
	e.sub = sub
	e.mu.Unlock()

	go m.pump(e, sub)
}

func (m *Mailbox) pump(e *entry, sub store.Subscription) {
	for {
		select {
		case doc, ok := <-sub.Events():
			if !ok {
				return
			}
			resp, err := wire.DecodeResponse(doc.Data)
			if err != nil {
				responseDecodeFailures.Inc()
				logger.Warn("response_decode_failed", "request", e.id, "doc", doc.ID, "error", err)
				m.resolve(e, nil, err)
				return
			}
			if resp.RequestID != e.id {
				correlationMismatches.Inc()
				logger.Warn("correlation_mismatch", "request", e.id, "got", resp.RequestID, "doc", doc.ID)
				continue
			}
			if resp.ID == "" {
				resp.ID = doc.ID
			}
			m.resolve(e, resp, nil)
			return
		case err := <-sub.Err():
			m.resolve(e, nil, &StoreError{Op: "subscription", Err: err})
			return
		case <-e.done:
			return
		}
	}
}

// resolve completes an entry at most once, removes it from the registry,
// tears down its subscription, and writes the terminal request status back
// to the store best-effort. Later contenders observe resolved and no-op.
func (m *Mailbox) resolve(e *entry, resp *models.Response, err error) {
	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		return
	}
	e.resolved = true
	e.resp = resp
	e.err = err
	sub := e.sub
	close(e.done)
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.entries, e.id)
	m.mu.Unlock()
	if sub != nil {
		sub.Close()
	}

	m.finishRequest(e.id, resp, err)
}

// finishRequest records the outcome on the request document. Failures here
// are logged, not surfaced: the caller already has its result and the
// sweeper bounds the document's lifetime regardless.
func (m *Mailbox) finishRequest(requestID string, resp *models.Response, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch {
	case err == nil:
		responsesMatched.Inc()
		logger.Info("response_matched", "request", requestID, "response", resp.ID, "success", resp.Success)
		fields := map[string]any{
			"status":       string(models.StatusCompleted),
			"completed_at": wire.FormatTime(time.Now().UTC()),
		}
		if resp.ID != "" {
			fields["response_id"] = resp.ID
		}
		if uerr := m.ads.Update(ctx, models.ColAIRequests, requestID, fields); uerr != nil {
			logger.Warn("request_status_writeback_failed", "request", requestID, "error", uerr)
		}
	case errors.Is(err, ErrTimeout):
		requestsTimedOut.Inc()
		logger.Warn("request_timed_out", "request", requestID)
		if uerr := m.ads.Update(ctx, models.ColAIRequests, requestID, map[string]any{
			"status": string(models.StatusTimeout),
		}); uerr != nil {
			logger.Warn("request_status_writeback_failed", "request", requestID, "error", uerr)
		}
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		requestsCancelled.Inc()
		logger.Info("request_cancelled", "request", requestID)
	default:
		logger.Warn("request_failed", "request", requestID, "error", err)
		if uerr := m.ads.Update(ctx, models.ColAIRequests, requestID, map[string]any{
			"status": string(models.StatusFailed),
		}); uerr != nil {
			logger.Warn("request_status_writeback_failed", "request", requestID, "error", uerr)
		}
	}
}

// Cancel resolves any pending Await for the request with ErrCancelled and
// releases its subscription. The underlying store documents are left for
// the sweeper. Cancelling an unknown or already resolved request is a no-op.
func (m *Mailbox) Cancel(requestID string) {
	m.mu.Lock()
	e, ok := m.entries[requestID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.resolve(e, nil, ErrCancelled)
}

// FetchResponse queries the response collection directly, for callers that
// believe the work already completed. Returns nil without error when no
// response document exists yet.
func (m *Mailbox) FetchResponse(ctx context.Context, requestID string) (*models.Response, error) {
	docs, err := m.ads.Query(ctx, models.ColAIResponses, store.Query{
		Filters: []store.Filter{{Field: "request_id", Op: store.OpEq, Value: requestID}},
		Limit:   1,
	})
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	if len(docs) == 0 {
		return nil, nil
	}
	resp, err := wire.DecodeResponse(docs[0].Data)
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = docs[0].ID
	}
	return resp, nil
}

// UpdateStatus moves a request along its lifecycle, enforcing the monotonic
// order pending -> processing -> {completed, failed, timeout}.
func (m *Mailbox) UpdateStatus(ctx context.Context, requestID string, status models.Status) error {
	doc, err := m.ads.Get(ctx, models.ColAIRequests, requestID)
	if err != nil {
		return &StoreError{Op: "get", Err: err}
	}
	cur, err := wire.DecodeRequest(doc.Data)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransition(status) {
		return fmt.Errorf("invalid status transition %s -> %s", cur.Status, status)
	}
	fields := map[string]any{"status": string(status)}
	now := wire.FormatTime(time.Now().UTC())
	if status == models.StatusProcessing {
		fields["processed_at"] = now
	}
	if status.Terminal() {
		fields["completed_at"] = now
	}
	if err := m.ads.Update(ctx, models.ColAIRequests, requestID, fields); err != nil {
		return &StoreError{Op: "update", Err: err}
	}
	logger.Info("request_status_updated", "request", requestID, "status", string(status))
	return nil
}

// Pending lists requests still waiting for a worker, newest first. Request
// documents that fail strict decoding are logged and dropped.
func (m *Mailbox) Pending(ctx context.Context) ([]*models.Request, error) {
	docs, err := m.ads.Query(ctx, models.ColAIRequests, store.Query{
		Filters:    []store.Filter{{Field: "status", Op: store.OpEq, Value: string(models.StatusPending)}},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      m.cfg.FetchLimit,
	})
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	out := make([]*models.Request, 0, len(docs))
	for _, doc := range docs {
		req, derr := wire.DecodeRequest(doc.Data)
		if derr != nil {
			logger.Warn("request_decode_failed", "doc", doc.ID, "error", derr)
			continue
		}
		if req.ID == "" {
			req.ID = doc.ID
		}
		out = append(out, req)
	}
	return out, nil
}

// Close resolves every outstanding await with ErrClosed and drops the
// registry. Subsequent Awaits fail fast.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		pending = append(pending, e)
	}
	m.mu.Unlock()

	for _, e := range pending {
		m.resolve(e, nil, ErrClosed)
	}
}
