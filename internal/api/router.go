package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/config"
	"github.com/byour-platform/chat/internal/handlers"
	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/realtime"
	"github.com/byour-platform/chat/internal/store"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Config  *config.Config
	DB      store.DataStore
	Redis   *store.RedisStore // nil in dev without Redis
	Hub     *realtime.Hub
	Handler *handlers.Handler
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security headers on everything
	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; skipped in dev without it
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        deps.Config.RateLimitWhitelist,
			AutoBlockEnabled: deps.Config.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - the platform frontend calls from its own origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := deps.Handler
	ws := handlers.NewWSHandler(deps.Hub, logger)
	auth := middleware.NewAuthMiddleware(deps.Config.AccessTokenSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Authenticated JSON routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
		r.Use(middleware.ValidateRequest)

		r.Get("/projects/{projectID}/thread", h.GetProjectThread)
		r.Post("/projects/{projectID}/messages", h.PostMessage)
		r.Get("/projects/{projectID}/participants", h.GetParticipants)
		r.Post("/messages/{messageID}/read", h.MarkRead)
		r.Get("/threads/{threadID}/typing", h.GetTyping)
		r.Get("/threads/{threadID}/search", h.SearchThread)
	})

	// Attachment uploads are multipart and need a larger body cap
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(middleware.MaxBodySize(50 * 1024 * 1024)) // 50MB max upload

		r.Post("/projects/{projectID}/uploads", h.UploadAttachments)
	})

	// Websocket endpoint; token arrives via header or query parameter
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/ws", ws.Serve)
	})

	// Internal sync endpoints for the platform backend
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(middleware.RequireRole(models.RoleAdmin))
		r.Use(middleware.MaxBodySize(64 * 1024))
		r.Use(middleware.ValidateRequest)

		r.Put("/internal/users/{userID}", h.SyncUser)
		r.Put("/internal/projects/{projectID}", h.SyncProject)
		r.Get("/internal/threads", h.ListThreads)
		r.Get("/internal/stats", h.Stats)
	})

	return r
}
