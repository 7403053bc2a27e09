package session

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]time.Time)}
}

func (s *MemoryStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = at
	return nil
}

func (s *MemoryStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, seen := range s.sessions {
		if !seen.After(since) {
			delete(s.sessions, id)
			continue
		}
		count++
	}
	return count, nil
}
