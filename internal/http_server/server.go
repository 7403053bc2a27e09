package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rx3lixir/cofi_rooms/internal/room"
	"github.com/rx3lixir/cofi_rooms/internal/session"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
)

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Rooms    *room.Handler
	Sessions *session.Handler
	Sounds   *sound.Handler

	// Limiter guards room creation. Nil disables rate limiting
	Limiter *RateLimiter

	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
}

type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

type Server struct {
	deps       Deps
	log        *slog.Logger
	httpServer *http.Server
}

func New(addr string, deps Deps, timeouts Timeouts, log *slog.Logger) *Server {
	s := &Server{
		deps: deps,
		log:  log,
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  orDefault(timeouts.Read, 10*time.Second),
		WriteTimeout: orDefault(timeouts.Write, 10*time.Second),
		IdleTimeout:  orDefault(timeouts.Idle, 60*time.Second),
	}

	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening fot HTTP requests
func (s *Server) Start() error {
	s.log.Info(
		"Starting HTTP server",
		"addr", s.httpServer.Addr,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(
		"Server shutting down gracefully...",
		"addr", s.httpServer.Addr,
	)
	return s.httpServer.Shutdown(ctx)
}
