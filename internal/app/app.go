package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pulserelay/internal/sweeper"
	"pulserelay/pkg/auth"
	"pulserelay/pkg/config"
	"pulserelay/pkg/logger"
	"pulserelay/pkg/mailbox"
	"pulserelay/pkg/progressor"
	"pulserelay/pkg/state"
	"pulserelay/pkg/store"
	"pulserelay/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	db  *store.Pebble
	mbx *mailbox.Mailbox
	swp *sweeper.Sweeper
	tel *telemetry.Service
}

// New opens the store and builds the mailbox, sweeper and telemetry
// components. It does not start the sweeper loop or the HTTP server;
// call Run to start those and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("prepare state dirs: %w", err)
	}

	db, err := store.Open(state.StorePath(eff.DBPath), store.Options{
		CacheBytes:         eff.Config.Storage.CacheBytes.Int64(),
		SubscriptionBuffer: eff.Config.Storage.SubscriptionBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", eff.DBPath, err)
	}

	mcfg := mailbox.Config{
		RequestTimeout:   eff.Config.Mailbox.RequestTimeout.Duration(),
		ExpirationWindow: eff.Config.Mailbox.ExpirationWindow.Duration(),
		MaxRetries:       eff.Config.Mailbox.MaxRetries,
		FetchLimit:       eff.Config.Mailbox.FetchLimit,
		DeviceID:         eff.Config.Mailbox.DeviceID,
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		db:        db,
		mbx:       mailbox.New(db, mcfg),
		swp:       sweeper.New(db),
		tel:       telemetry.NewService(db),
	}
	return a, nil
}

// Mailbox exposes the correlator, mainly for tests.
func (a *App) Mailbox() *mailbox.Mailbox { return a.mbx }

// Run starts the sweeper (if enabled) and the HTTP server, and blocks
// until ctx is cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if _, err := progressor.Run(ctx, a.db, a.version, a.mbx.Config().ExpirationWindow); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.eff.Config.Sweeper.Enabled {
		stop, err := a.swp.Start(ctx, a.eff.Config.Sweeper.Cron)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := a.buildServer()
	g.Go(func() error { return a.serveHTTP(ctx, srv) })

	err := g.Wait()
	a.shutdown()
	return err
}

// shutdown resolves outstanding awaits and closes the store.
func (a *App) shutdown() {
	a.mbx.Close()
	if err := a.db.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

// validateConfig fails fast on configs the server cannot run with.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("db path required (use --db or PULSERELAY_DB_PATH)")
	}
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("no effective config")
	}
	if d := cfg.Mailbox.RequestTimeout.Duration(); d < 0 {
		return fmt.Errorf("mailbox.request_timeout must not be negative")
	}
	if d := cfg.Mailbox.ExpirationWindow.Duration(); d < 0 {
		return fmt.Errorf("mailbox.expiration_window must not be negative")
	}
	if d := cfg.Mailbox.ExpirationWindow.Duration(); d > 0 && d < time.Second {
		return fmt.Errorf("mailbox.expiration_window too small: %s", d)
	}
	return nil
}

func (a *App) secConfig() auth.SecConfig {
	return auth.SecFromConfig(a.eff.Config)
}
