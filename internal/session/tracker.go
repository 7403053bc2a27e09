package session

import (
	"context"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

// Tracker counts browser sessions that sent a heartbeat within Timeout.
// It is independent of room membership
type Tracker struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

func NewTracker(store Store, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{store: store, timeout: timeout, now: time.Now}
}

func (t *Tracker) Heartbeat(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrEmptySessionID
	}
	return t.store.Touch(ctx, sessionID, t.now())
}

func (t *Tracker) ActiveCount(ctx context.Context) (int64, error) {
	return t.store.CountSince(ctx, t.now().Add(-t.timeout))
}
