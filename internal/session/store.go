package session

import (
	"context"
	"errors"
	"time"
)

var ErrEmptySessionID = errors.New("session id is empty")

// Store keeps the last heartbeat of every browser session
type Store interface {
	Touch(ctx context.Context, sessionID string, at time.Time) error
	// CountSince counts sessions seen strictly after since and may drop the rest
	CountSince(ctx context.Context, since time.Time) (int64, error)
}
