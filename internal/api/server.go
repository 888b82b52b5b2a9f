package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP API server. The game websocket shares its listener.
type Server struct {
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	srv         *http.Server
}

// NewServer creates an API server with the production rate limit. Nothing
// listens until Start is called.
//
// For testing HTTP endpoints, use NewRouter() directly.
func NewServer(engine EngineInterface, arch ArchiveReader, hub http.Handler) *Server {
	s := &Server{
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Archive:     arch,
		Hub:         hub,
		RateLimiter: s.rateLimiter,
	})
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens on addr and blocks until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr

	log.Info().Str("addr", addr).Msg("🌐 API server starting")
	log.Info().Str("url", "ws://localhost"+addr+"/ws").Msg("🎮 Game socket")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests and the rate limiter's cleanup loop.
// Hijacked websocket connections are not tracked by http.Server; close
// the hub to end them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.srv.Shutdown(ctx)
}
