package room

import (
	"time"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
)

type Room struct {
	ID        string      `json:"id"`
	Theme     theme.Theme `json:"theme"`
	CreatedAt time.Time   `json:"created_at"`
}

// Assignment binds a user to one object of a room
type Assignment struct {
	RoomID    string     `json:"room_id"`
	UserID    string     `json:"user_id"`
	ObjectID  string     `json:"object_id"`
	IsActive  bool       `json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LastSeen  time.Time  `json:"last_seen"`
	ToggledAt *time.Time `json:"toggled_at,omitempty"`
}

// ObjectState is the derived per-object view of a room
type ObjectState struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"isActive"`
	IsMe       bool   `json:"isMe"`
	IsAssigned bool   `json:"isAssigned"`
	Holders    int    `json:"holders"`
}

type CreateRoomRequest struct {
	Theme string `json:"theme"`
}

type RoomResponse struct {
	Room Room `json:"room"`
}

type LookupRoomRequest struct {
	RoomID string `json:"roomId"`
}

type RoomStateResponse struct {
	Room    Room          `json:"room"`
	Users   []Assignment  `json:"users"`
	Objects []ObjectState `json:"objects"`
}

type JoinRoomRequest struct {
	UserID string `json:"userId,omitempty"`
}

type JoinRoomResponse struct {
	UserID     string     `json:"userId"`
	UserObject Assignment `json:"userObject"`
}

type ToggleRequest struct {
	UserID string `json:"userId"`
}

type ToggleResponse struct {
	UserObject Assignment `json:"userObject"`
}

type HeartbeatRequest struct {
	UserID string `json:"userId"`
}

type HeartbeatResponse struct {
	Success bool `json:"success"`
}
