package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/prospectid/npid-gateway/internal/api/handler"
	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/config"
	"github.com/prospectid/npid-gateway/internal/npid"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(adapter *npid.Adapter, appCache *cache.Cache, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(adapter, appCache, cfg)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/session", h.HealthCheckSession)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Swagger UI over the embedded OpenAPI document.
	r.Get("/docs/doc.json", OpenAPIDoc)
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth
		r.Post("/auth/login", h.Login)

		// Inbox
		r.Route("/inbox", func(r chi.Router) {
			r.Get("/", h.ListInbox)
			r.Get("/{id}", h.GetMessage)
			r.Get("/{id}/assignment", h.GetAssignmentModal)
			r.Post("/{id}/assign", h.AssignThread)
			r.Post("/{id}/reply", h.SendReply)
		})

		// Contacts and identity
		r.Get("/contacts", h.SearchContacts)
		r.Route("/athletes/{id}", func(r chi.Router) {
			r.Get("/resolve", h.ResolveIdentity)
			r.Get("/seasons", h.GetSeasons)
			r.Post("/videos", h.SubmitVideo)
		})

		// Video tasks
		r.Route("/videos/{id}", func(r chi.Router) {
			r.Post("/stage", h.UpdateStage)
			r.Post("/status", h.UpdateStatus)
			r.Post("/due-date", h.UpdateDueDate)
		})
	})

	return r
}
