package room

import (
	"context"
	"time"
)

// Store is the durable record of rooms and assignments.
// Every mutation touches a single row in a single statement
type Store interface {
	CreateRoom(ctx context.Context, room *Room) error
	GetRoomByID(ctx context.Context, roomID string) (*Room, error)

	// ListAssignments returns rows with last_seen after onlineSince.
	// A zero onlineSince returns every row of the room
	ListAssignments(ctx context.Context, roomID string, onlineSince time.Time) ([]*Assignment, error)
	GetAssignment(ctx context.Context, roomID, userID string) (*Assignment, error)

	// InsertAssignment inserts a, or refreshes last_seen when the
	// (room_id, user_id) row already exists. a is overwritten with the stored row
	InsertAssignment(ctx context.Context, a *Assignment) error
	TouchAssignment(ctx context.Context, roomID, userID string, at time.Time) error
	ToggleAssignment(ctx context.Context, roomID, userID string, at time.Time) (*Assignment, error)
	DeleteStaleAssignments(ctx context.Context, staleBefore time.Time) (int64, error)
}
