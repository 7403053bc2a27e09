package room

import (
	"fmt"
	"time"
)

const DefaultOnlineTimeout = 30 * time.Second

// Presence classifies assignments as online or stale from last_seen alone.
// Reads hide rows older than OnlineTimeout; the sweeper deletes rows older
// than StaleTimeout, which is never shorter than OnlineTimeout
type Presence struct {
	OnlineTimeout time.Duration
	StaleTimeout  time.Duration
}

// NewPresence fills defaults: 30s online window, stale window twice that
func NewPresence(online, stale time.Duration) (Presence, error) {
	if online <= 0 {
		online = DefaultOnlineTimeout
	}
	if stale == 0 {
		stale = 2 * online
	}
	if stale < online {
		return Presence{}, fmt.Errorf("stale timeout %s is shorter than online timeout %s", stale, online)
	}
	return Presence{OnlineTimeout: online, StaleTimeout: stale}, nil
}

// OnlineSince is the exclusive lower bound of last_seen for online rows
func (p Presence) OnlineSince(now time.Time) time.Time {
	return now.Add(-p.OnlineTimeout)
}

// StaleBefore is the inclusive upper bound of last_seen for stale rows
func (p Presence) StaleBefore(now time.Time) time.Time {
	return now.Add(-p.StaleTimeout)
}

func (p Presence) IsOnline(a *Assignment, now time.Time) bool {
	return now.Sub(a.LastSeen) < p.OnlineTimeout
}

func (p Presence) IsStale(a *Assignment, now time.Time) bool {
	return now.Sub(a.LastSeen) >= p.StaleTimeout
}
