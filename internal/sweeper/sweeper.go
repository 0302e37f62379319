// Package sweeper purges mailbox documents past their absolute expiration,
// independent of whether anyone is still waiting on them. A request can time
// out for its caller long before the sweeper removes it, and a request
// nobody awaits anymore is still eventually removed.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pulserelay/pkg/logger"
	"pulserelay/pkg/models"
	"pulserelay/pkg/store"
	"pulserelay/pkg/wire"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulserelay_sweeper_documents_removed_total",
		Help: "Documents removed by the sweeper, by collection.",
	}, []string{"collection"})

	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulserelay_sweeper_delete_failures_total",
		Help: "Individual document deletions that failed during a sweep.",
	})
)

// Sweeper removes expired request documents and orphaned response documents
// from the store.
type Sweeper struct {
	ads store.Adapter
}

// New builds a sweeper over the given adapter.
func New(ads store.Adapter) *Sweeper {
	return &Sweeper{ads: ads}
}

// RunOnce performs a single sweep and returns the number of documents
// removed. A failed individual delete is logged and counted but does not
// abort the rest of the sweep; the run is partial-failure tolerant, not
// atomic.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.sweepExpiredRequests(gctx)
		removed.Add(int64(n))
		return err
	})
	g.Go(func() error {
		n, err := s.sweepOrphanResponses(gctx)
		removed.Add(int64(n))
		return err
	})

	err := g.Wait()
	logger.Info("sweep_done", "removed", removed.Load(), "error", err)
	return int(removed.Load()), err
}

// sweepExpiredRequests deletes every request whose expires_at lies strictly
// in the past.
func (s *Sweeper) sweepExpiredRequests(ctx context.Context) (int, error) {
	now := wire.FormatTime(time.Now().UTC())
	docs, err := s.ads.Query(ctx, models.ColAIRequests, store.Query{
		Filters: []store.Filter{{Field: "expires_at", Op: store.OpLt, Value: now}},
	})
	if err != nil {
		return 0, fmt.Errorf("query expired requests: %w", err)
	}
	removed := 0
	for _, doc := range docs {
		if err := s.ads.Delete(ctx, models.ColAIRequests, doc.ID); err != nil {
			sweepFailures.Inc()
			logger.Warn("sweep_delete_failed", "collection", models.ColAIRequests, "doc", doc.ID, "error", err)
			continue
		}
		documentsSwept.WithLabelValues(models.ColAIRequests).Inc()
		removed++
	}
	return removed, nil
}

// sweepOrphanResponses deletes responses whose correlation key no longer
// resolves to a stored request, keeping the response collection bounded
// once requests have been swept.
func (s *Sweeper) sweepOrphanResponses(ctx context.Context) (int, error) {
	docs, err := s.ads.Query(ctx, models.ColAIResponses, store.Query{})
	if err != nil {
		return 0, fmt.Errorf("query responses: %w", err)
	}
	removed := 0
	for _, doc := range docs {
		var probe struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(doc.Data, &probe); err != nil || probe.RequestID == "" {
			continue
		}
		_, err := s.ads.Get(ctx, models.ColAIRequests, probe.RequestID)
		if err == nil {
			continue
		}
		if err != store.ErrNotFound {
			sweepFailures.Inc()
			logger.Warn("sweep_probe_failed", "doc", doc.ID, "error", err)
			continue
		}
		if err := s.ads.Delete(ctx, models.ColAIResponses, doc.ID); err != nil {
			sweepFailures.Inc()
			logger.Warn("sweep_delete_failed", "collection", models.ColAIResponses, "doc", doc.ID, "error", err)
			continue
		}
		documentsSwept.WithLabelValues(models.ColAIResponses).Inc()
		removed++
	}
	return removed, nil
}
