// Package handler provides HTTP handlers for all gateway endpoints.
// Handlers call the upstream adapter and pass normalized JSON through —
// no service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/prospectid/npid-gateway/internal/api/respond"
	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/config"
	"github.com/prospectid/npid-gateway/internal/npid"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	adapter *npid.Adapter
	cache   *cache.Cache
	cfg     *config.Config
}

// New creates a Handler with shared dependencies.
func New(adapter *npid.Adapter, c *cache.Cache, cfg *config.Config) *Handler {
	return &Handler{
		adapter: adapter,
		cache:   c,
		cfg:     cfg,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and docs location.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "NPID Gateway",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"features": []string{
			"persistent_session",
			"csrf_token_cache",
			"response_normalization",
			"bounded_retry",
			"in_memory_cache",
			"etag_support",
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckSession verifies the upstream session with a live check.
// @Summary Session health check
// @Description Performs a live login-check round trip against the upstream backend.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/session [get]
func (h *Handler) HealthCheckSession(w http.ResponseWriter, r *http.Request) {
	ok, err := h.adapter.ValidateSession(r.Context())
	if err != nil || !ok {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"session":   "invalid",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"session":   "valid",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
