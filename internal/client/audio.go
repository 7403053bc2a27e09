package client

import (
	"time"

	"github.com/rx3lixir/cofi_rooms/internal/sound"
)

// ResyncTolerance is how far a loop may drift before it is seeked back
const ResyncTolerance = time.Second

// PlaybackOffset is the position within a loop that every listener should be
// at, given the room's creation time. Clock skew makes this best effort
func PlaybackOffset(createdAt, now time.Time, loopLength time.Duration) time.Duration {
	if loopLength <= 0 {
		return 0
	}
	elapsed := now.Sub(createdAt)
	if elapsed <= 0 {
		return 0
	}
	return elapsed % loopLength
}

// NeedsResync reports whether current has drifted from target by more than
// ResyncTolerance
func NeedsResync(current, target time.Duration) bool {
	diff := current - target
	if diff < 0 {
		diff = -diff
	}
	return diff > ResyncTolerance
}

// Track is a loop the client should currently be playing
type Track struct {
	ObjectID string // empty for the background loop
	Name     string
	URL      string
}

// Playlist lists the background loop followed by every active object of the
// view, in catalog order
func Playlist(v View, catalog *sound.ThemeView) []Track {
	if catalog == nil {
		return nil
	}

	active := make(map[string]bool, len(v.Objects))
	for _, o := range v.Objects {
		active[o.ID] = o.IsActive
	}

	tracks := []Track{{Name: catalog.Name, URL: catalog.BackgroundURL}}
	for _, o := range catalog.Objects {
		if active[o.ID] {
			tracks = append(tracks, Track{ObjectID: o.ID, Name: o.Name, URL: o.URL})
		}
	}
	return tracks
}
