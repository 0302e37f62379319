package store

import (
	"sync"

	"pulserelay/pkg/logger"
)

// hub is the in-process change-notification registry. Every subscription is
// keyed by its own id and owns a buffered event channel, so one slow
// consumer never blocks delivery to another. Removal happens on every
// teardown path, not just whole-store close.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
}

type subscription struct {
	h          *hub
	id         uint64
	collection string
	q          Query
	events     chan Document
	errs       chan error
}

func newHub(buffer int) *hub {
	if buffer <= 0 {
		buffer = 50
	}
	return &hub{subs: make(map[uint64]*subscription), buffer: buffer}
}

func (h *hub) add(collection string, q Query) *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscription{
		h:          h,
		id:         h.nextID,
		collection: collection,
		q:          q,
		events:     make(chan Document, h.buffer),
		errs:       make(chan error, 1),
	}
	h.subs[s.id] = s
	subscriptionsOpen.Inc()
	return s
}

// notify delivers a changed document to every matching subscription. Sends
// never block: a subscription whose buffer is full misses the event and the
// drop is logged.
func (h *hub) notify(doc Document, decoded map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.collection != doc.Collection {
			continue
		}
		if !matchesAll(decoded, s.q.Filters) {
			continue
		}
		select {
		case s.events <- doc:
		default:
			logger.Warn("subscription_event_dropped",
				"collection", doc.Collection, "doc", doc.ID, "sub", s.id)
		}
	}
}

// deliver replays a document to one subscription, used for the initial
// snapshot at subscribe time.
func (h *hub) deliver(s *subscription, doc Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	select {
	case s.events <- doc:
	default:
		logger.Warn("subscription_event_dropped",
			"collection", doc.Collection, "doc", doc.ID, "sub", s.id)
	}
}

func (h *hub) close(s *subscription, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked(s, err)
}

func (h *hub) closeLocked(s *subscription, err error) {
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	subscriptionsOpen.Dec()
	if err != nil {
		select {
		case s.errs <- err:
		default:
		}
	}
	close(s.events)
}

// closeAll tears down every live subscription, surfacing err on each error
// channel. Called when the store itself shuts down.
func (h *hub) closeAll(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		h.closeLocked(s, err)
	}
}

func (s *subscription) Events() <-chan Document { return s.events }

func (s *subscription) Err() <-chan error { return s.errs }

func (s *subscription) Close() { s.h.close(s, nil) }
