// Package maintenance runs periodic background tasks as Go tickers.
// The gateway is already a persistent, long-running service, so session
// keepalive and cache hygiene are driven from here rather than external
// cron.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/npid"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	KeepaliveInterval time.Duration // Live session validation against the upstream
	EvictInterval     time.Duration // Expired cache entries and identity cache sweep
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval: 10 * time.Minute,
		EvictInterval:     5 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, adapter *npid.Adapter, appCache *cache.Cache, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"keepalive", cfg.KeepaliveInterval,
		"evict", cfg.EvictInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Keepalive: validate the upstream session so expiry is noticed
	// before an agent hits it.
	if cfg.KeepaliveInterval > 0 {
		t := time.NewTicker(cfg.KeepaliveInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { keepalive(ctx, adapter, logger) })
	}

	// Evict: drop expired cache entries and stale identity resolutions.
	if cfg.EvictInterval > 0 {
		t := time.NewTicker(cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			appCache.Evict()
			adapter.Resolver().Sweep()
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// keepalive validates the persisted session against the upstream. A
// failed validation is surfaced as degraded state, never as an automatic
// re-login: credentials flow only through the explicit login paths.
func keepalive(ctx context.Context, adapter *npid.Adapter, logger *slog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ok, err := adapter.ValidateSession(checkCtx)
	switch {
	case err != nil:
		logger.Warn("Session keepalive check failed", "error", err)
	case !ok:
		logger.Warn("Session no longer valid, re-authentication required")
	default:
		logger.Debug("Session keepalive ok")
	}
}
