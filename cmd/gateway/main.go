// Command gateway is the NPID Gateway server: a modern JSON facade over
// the legacy Prospect ID recruiting backend.
//
// Usage:
//
//	npid-gateway
//	GATEWAY_PORT=8080 npid-gateway
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/prospectid/npid-gateway/internal/api"
	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/config"
	"github.com/prospectid/npid-gateway/internal/maintenance"
	"github.com/prospectid/npid-gateway/internal/npid"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Upstream adapter
	adapter := npid.New(npid.Options{
		BaseURL:           cfg.NPIDBaseURL,
		SessionFile:       cfg.NPIDSessionFile,
		Email:             cfg.NPIDEmail,
		Password:          cfg.NPIDPassword,
		APIKey:            cfg.NPIDAPIKey,
		RequestsPerMinute: cfg.NPIDRequestsPerM,
		Timeout:           cfg.NPIDTimeout,
		Logger:            logger,
	})

	// A missing session is not fatal at startup: the gateway comes up
	// degraded and answers 401 until someone logs in.
	if err := adapter.EnsureSession(ctx); err != nil {
		logger.Warn("No upstream session at startup", "error", err)
	} else {
		logger.Info("Upstream session loaded", "base_url", cfg.NPIDBaseURL)
	}

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Start maintenance tickers (session keepalive, cache eviction)
	mcfg := maintenance.DefaultConfig()
	mcfg.KeepaliveInterval = cfg.KeepaliveInterval
	go maintenance.Start(ctx, adapter, appCache, mcfg, logger)

	// Create router
	router := api.NewRouter(adapter, appCache, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.GatewayHost, cfg.GatewayPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting NPID Gateway",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.GatewayPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
