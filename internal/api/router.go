package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vessel-racer/internal/archive"
	"vessel-racer/internal/game"
	"vessel-racer/internal/vessel"
)

// EngineInterface is the part of the engine the API reads.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns the latest immutable engine state (never nil)
	Snapshot() *game.Snapshot
}

// ArchiveReader serves archived vessel definitions.
type ArchiveReader interface {
	Get(ctx context.Context, id vessel.ID) (archive.Record, error)
	List(ctx context.Context, limit int) ([]archive.Record, error)
	Count(ctx context.Context) (int, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: engine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	ts := httptest.NewServer(api.NewRouter(cfg))
type RouterConfig struct {
	// Engine is the game engine (required)
	Engine EngineInterface

	// Archive is optional; without it the archive routes answer 503.
	Archive ArchiveReader

	// Hub serves /ws. Nil leaves the route out (clients have no hub).
	Hub http.Handler

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to localhost on any port.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	engine  EngineInterface
	archive ArchiveReader
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// No goroutines are started unless RateLimiter is nil, in which case the
// limiter's cleanup loop runs until the process exits.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting (BEFORE CORS to reject early)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}

	h := &routerHandlers{
		engine:  cfg.Engine,
		archive: cfg.Archive,
	}

	r.Get("/health", handleHealth)

	// The websocket has its own per-IP and per-client limits.
	if cfg.Hub != nil {
		r.Handle("/ws", cfg.Hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", h.handleGetState)
			r.Get("/vessels", h.handleGetVessels)
			r.Get("/clients", h.handleGetClients)
			r.Get("/events", h.handleGetEvents)

			r.Get("/archive", h.handleListArchive)
			r.Get("/archive/{id}", h.handleGetArchived)
		})

		r.Get("/debug/view.png", h.handleView)
	})

	return r
}
