package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rx3lixir/cofi_rooms/pkg/httputil"
)

type HeartbeatRequest struct {
	SessionID string `json:"sessionId"`
}

type HeartbeatResponse struct {
	Success bool `json:"success"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type Handler struct {
	tracker *Tracker
	log     *slog.Logger
	timeout time.Duration
}

func NewHandler(tracker *Tracker, log *slog.Logger, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = time.Second * 2
	}
	return &Handler{tracker, log, timeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/heartbeat", httputil.Handler(h.HandleHeartbeat, h.log))
	r.Get("/users/count", httputil.Handler(h.HandleCount, h.log))
}

func (h *Handler) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// HandleHeartbeat records that a browser session is still open
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) error {
	req := new(HeartbeatRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	if err := h.tracker.Heartbeat(ctx, req.SessionID); err != nil {
		if errors.Is(err, ErrEmptySessionID) {
			return httputil.BadRequest("Session ID is required")
		}
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, HeartbeatResponse{Success: true})
}

// HandleCount returns the number of live sessions. Never cached
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	count, err := h.tracker.ActiveCount(ctx)
	if err != nil {
		return httputil.Internal(err)
	}

	h.log.Debug("active user count", "count", count)

	w.Header().Set("Cache-Control", "no-store")
	return httputil.RespondJSON(w, http.StatusOK, CountResponse{Count: count})
}
