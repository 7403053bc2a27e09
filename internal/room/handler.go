package room

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
	"github.com/rx3lixir/cofi_rooms/pkg/httputil"
)

type Handler struct {
	service   *Service
	log       *slog.Logger
	dbTimeout time.Duration
}

func NewHandler(service *Service, log *slog.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{service, log, dbTimeout}
}

// RegisterRoutes mounts the room endpoints. createLimit, when not nil,
// wraps room creation only
func (h *Handler) RegisterRoutes(r chi.Router, createLimit func(http.Handler) http.Handler) {
	create := http.Handler(httputil.Handler(h.HandleCreateRoom, h.log))
	if createLimit != nil {
		create = createLimit(create)
	}

	r.Method(http.MethodPost, "/", create)
	r.Post("/join", httputil.Handler(h.HandleLookupRoom, h.log))
	r.Get("/{roomID}", httputil.Handler(h.HandleGetRoom, h.log))
	r.Post("/{roomID}/join", httputil.Handler(h.HandleJoinRoom, h.log))
	r.Post("/{roomID}/toggle", httputil.Handler(h.HandleToggle, h.log))
	r.Post("/{roomID}/heartbeat", httputil.Handler(h.HandleHeartbeat, h.log))
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

func roomIDParam(r *http.Request) (string, error) {
	raw, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return "", err
	}
	return NormalizeCode(raw), nil
}

// HandleCreateRoom creates a room for the requested theme
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) error {
	req := new(CreateRoomRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, err := h.service.CreateRoom(ctx, req.Theme)
	if err != nil {
		return h.mapError(err)
	}

	h.log.Info("room created",
		"room_id", room.ID,
		"theme", room.Theme)

	return httputil.RespondJSON(w, http.StatusCreated, RoomResponse{Room: *room})
}

// HandleLookupRoom checks that a typed-in code names an existing room
func (h *Handler) HandleLookupRoom(w http.ResponseWriter, r *http.Request) error {
	req := new(LookupRoomRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	code := NormalizeCode(req.RoomID)
	if code == "" {
		return httputil.BadRequest("Room ID is required")
	}
	if !ValidCode(code) {
		return httputil.BadRequest("Room ID must be 4 letters")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, err := h.service.GetRoom(ctx, code)
	if err != nil {
		return h.mapError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, RoomResponse{Room: *room})
}

// HandleGetRoom returns the room with its online users and derived objects.
// The optional userId query parameter marks the caller's own object
func (h *Handler) HandleGetRoom(w http.ResponseWriter, r *http.Request) error {
	roomID, err := roomIDParam(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, users, err := h.service.RoomState(ctx, roomID)
	if err != nil {
		return h.mapError(err)
	}

	list := make([]Assignment, len(users))
	for i, u := range users {
		list[i] = *u
	}

	response := RoomStateResponse{
		Room:    *room,
		Users:   list,
		Objects: ResolveObjects(theme.Objects(room.Theme), users, r.URL.Query().Get("userId")),
	}

	return httputil.RespondJSON(w, http.StatusOK, response)
}

// HandleJoinRoom assigns the caller to an object. The body is optional
func (h *Handler) HandleJoinRoom(w http.ResponseWriter, r *http.Request) error {
	roomID, err := roomIDParam(r)
	if err != nil {
		return err
	}

	req := new(JoinRoomRequest)
	if err := httputil.DecodeOptionalJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	a, err := h.service.Join(ctx, roomID, req.UserID)
	if err != nil {
		return h.mapError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, JoinRoomResponse{
		UserID:     a.UserID,
		UserObject: *a,
	})
}

// HandleToggle flips the caller's object
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) error {
	roomID, err := roomIDParam(r)
	if err != nil {
		return err
	}

	req := new(ToggleRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}
	if req.UserID == "" {
		return httputil.BadRequest("User ID is required")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	a, err := h.service.Toggle(ctx, roomID, req.UserID)
	if err != nil {
		return h.mapError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, ToggleResponse{UserObject: *a})
}

func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) error {
	roomID, err := roomIDParam(r)
	if err != nil {
		return err
	}

	req := new(HeartbeatRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}
	if req.UserID == "" {
		return httputil.BadRequest("User ID is required")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if err := h.service.Heartbeat(ctx, roomID, req.UserID); err != nil {
		return h.mapError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, HeartbeatResponse{Success: true})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTheme):
		return httputil.BadRequest("Invalid theme")
	case errors.Is(err, ErrRoomNotFound):
		return httputil.NotFound("Room not found")
	case errors.Is(err, ErrUserNotInRoom):
		return httputil.NotFound("User not in room")
	default:
		return httputil.Internal(err)
	}
}
