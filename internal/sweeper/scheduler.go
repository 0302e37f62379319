package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"pulserelay/pkg/logger"
)

// DefaultCron sweeps every five minutes, half the default expiration window.
const DefaultCron = "*/5 * * * *"

// Start launches the cron-driven sweep loop and returns a cancel func. An
// empty cron expression falls back to DefaultCron; an invalid one is an
// error rather than a silently idle sweeper.
func (s *Sweeper) Start(ctx context.Context, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweeper_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweeper cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	logger.Info("sweeper_started", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and sleeps
// until then, so sweeps land on the schedule instead of drifting with a
// fixed ticker.
func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("sweeper_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := s.RunOnce(ctx); err != nil {
				logger.Error("sweep_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		}
	}
}
