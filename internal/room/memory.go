package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type assignmentKey struct {
	roomID string
	userID string
}

// MemoryStore keeps everything in process. Each method holds the lock for
// its whole body, which gives the same per-row atomicity as the SQL store
type MemoryStore struct {
	mu          sync.RWMutex
	rooms       map[string]Room
	assignments map[assignmentKey]Assignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:       make(map[string]Room),
		assignments: make(map[assignmentKey]Assignment),
	}
}

func (s *MemoryStore) CreateRoom(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoomID, room.ID)
	}
	s.rooms[room.ID] = *room
	return nil
}

func (s *MemoryStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context, roomID string, onlineSince time.Time) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignments := []*Assignment{}
	for key, a := range s.assignments {
		if key.roomID != roomID || !a.LastSeen.After(onlineSince) {
			continue
		}
		assignments = append(assignments, copyAssignment(a))
	}

	sort.Slice(assignments, func(i, j int) bool {
		if !assignments[i].JoinedAt.Equal(assignments[j].JoinedAt) {
			return assignments[i].JoinedAt.Before(assignments[j].JoinedAt)
		}
		return assignments[i].UserID < assignments[j].UserID
	})

	return assignments, nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, roomID, userID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey{roomID, userID}]
	if !ok {
		return nil, ErrUserNotInRoom
	}
	return copyAssignment(a), nil
}

func (s *MemoryStore) InsertAssignment(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[a.RoomID]; !ok {
		return ErrRoomNotFound
	}

	key := assignmentKey{a.RoomID, a.UserID}
	if existing, ok := s.assignments[key]; ok {
		if a.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = a.LastSeen
		}
		s.assignments[key] = existing
		*a = *copyAssignment(existing)
		return nil
	}

	stored := *a
	stored.ToggledAt = nil
	s.assignments[key] = stored
	*a = *copyAssignment(stored)
	return nil
}

func (s *MemoryStore) TouchAssignment(ctx context.Context, roomID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{roomID, userID}
	a, ok := s.assignments[key]
	if !ok {
		return ErrUserNotInRoom
	}
	if at.After(a.LastSeen) {
		a.LastSeen = at
	}
	s.assignments[key] = a
	return nil
}

func (s *MemoryStore) ToggleAssignment(ctx context.Context, roomID, userID string, at time.Time) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{roomID, userID}
	a, ok := s.assignments[key]
	if !ok {
		return nil, ErrUserNotInRoom
	}
	a.IsActive = !a.IsActive
	toggledAt := at
	a.ToggledAt = &toggledAt
	s.assignments[key] = a
	return copyAssignment(a), nil
}

func (s *MemoryStore) DeleteStaleAssignments(ctx context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, a := range s.assignments {
		if !a.LastSeen.After(staleBefore) {
			delete(s.assignments, key)
			deleted++
		}
	}
	return deleted, nil
}

func copyAssignment(a Assignment) *Assignment {
	if a.ToggledAt != nil {
		t := *a.ToggledAt
		a.ToggledAt = &t
	}
	return &a
}
