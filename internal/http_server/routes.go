package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rx3lixir/cofi_rooms/pkg/httputil"
)

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	var createLimit func(http.Handler) http.Handler
	if s.deps.Limiter != nil {
		createLimit = s.deps.Limiter.Middleware
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", httputil.Handler(s.handleHealth, s.log))

		r.Route("/rooms", func(r chi.Router) {
			s.deps.Rooms.RegisterRoutes(r, createLimit)
		})

		if s.deps.Sessions != nil {
			s.deps.Sessions.RegisterRoutes(r)
		}

		if s.deps.Sounds != nil {
			r.Route("/themes", s.deps.Sounds.RegisterRoutes)
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every registered check. Any failure turns the whole
// response into a 503
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(s.deps.HealthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.deps.HealthChecks))
	}

	for name, check := range s.deps.HealthChecks {
		if err := check(ctx); err != nil {
			s.log.Warn("health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	return httputil.RespondJSON(w, status, resp)
}
