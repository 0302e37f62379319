package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pulserelay/pkg/api"
	"pulserelay/pkg/banner"
	"pulserelay/pkg/logger"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// buildServer assembles the router behind the auth gateway.
func (a *App) buildServer() *http.Server {
	s := &api.Server{
		Mailbox:   a.mbx,
		Sweeper:   a.swp,
		Telemetry: a.tel,
		Ready:     a.db.Ready,
	}
	return &http.Server{
		Addr:    a.eff.Addr,
		Handler: s.Router(a.secConfig()),
	}
}

// serveHTTP runs the server until ctx is cancelled, then drains with a
// bounded shutdown.
func (a *App) serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		logger.Info("http_listen", "addr", srv.Addr, "tls", cert != "" && key != "")
		if cert != "" && key != "" {
			errCh <- srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
