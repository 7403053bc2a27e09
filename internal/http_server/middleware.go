package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/rx3lixir/cofi_rooms/pkg/httputil"
)

// RequestLogger logs every request with status, latency, request_id, etc.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			latency := time.Since(start)

			// Polling and heartbeats are the bulk of traffic
			level := slog.LevelDebug
			if ww.Status() >= 500 {
				level = slog.LevelError
			}

			log.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", latency.Milliseconds(),
				"size", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// RateLimiter is a fixed window counter per client IP kept in Redis
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	log    *slog.Logger
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "cofi:ratelimit:",
		log:    log,
	}
}

// Middleware rejects requests over the limit with 429. Redis failures let
// the request through
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.prefix + clientIP(r)

		count, err := l.hit(r.Context(), key)
		if err != nil {
			l.log.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			httputil.RespondError(w, r, httputil.TooManyRequests("Too many requests"), l.log)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit opens the window and counts the request in one transaction, so a
// counter never exists without its TTL
func (l *RateLimiter) hit(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// clientIP strips the port; RealIP has already replaced RemoteAddr when a
// proxy header was present
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
