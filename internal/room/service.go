package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
)

const defaultCodeAttempts = 16

// Service owns room creation, assignment of users to objects, toggling and
// liveness. It holds no room state of its own; the Store is the only shared
// mutable resource
type Service struct {
	store    Store
	presence Presence
	log      *slog.Logger

	codes        CodeGenerator
	codeAttempts int
	now          func() time.Time
	pick         func(n int) int
	newUserID    func() string
}

type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.codes = g }
}

// WithPicker replaces the random index choice used for object assignment
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) { s.pick = pick }
}

func WithUserIDs(newUserID func() string) Option {
	return func(s *Service) { s.newUserID = newUserID }
}

func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func NewService(store Store, presence Presence, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		presence:     presence,
		log:          log,
		codes:        RandomCodes{},
		codeAttempts: defaultCodeAttempts,
		now:          time.Now,
		pick:         rand.IntN,
		newUserID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Presence() Presence {
	return s.presence
}

// clock returns the current time at the precision Postgres keeps
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateRoom creates a room with a fresh code, retrying on code collisions
func (s *Service) CreateRoom(ctx context.Context, rawTheme string) (*Room, error) {
	th, err := theme.Parse(rawTheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTheme, rawTheme)
	}

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		room := &Room{
			ID:        s.codes.Generate(),
			Theme:     th,
			CreatedAt: s.clock(),
		}

		err := s.store.CreateRoom(ctx, room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, ErrDuplicateRoomID) {
			return nil, fmt.Errorf("create room: %w", err)
		}

		s.log.Debug("room code collision, retrying",
			"room_id", room.ID,
			"attempt", attempt)
	}

	return nil, ErrRoomCodesExhausted
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	return s.store.GetRoomByID(ctx, roomID)
}

// RoomState returns the room and its online assignments
func (s *Service) RoomState(ctx context.Context, roomID string) (*Room, []*Assignment, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	users, err := s.store.ListAssignments(ctx, roomID, s.presence.OnlineSince(s.clock()))
	if err != nil {
		return nil, nil, fmt.Errorf("list online users: %w", err)
	}

	return room, users, nil
}

// Join assigns a user to an object of the room. A known user gets their
// previous assignment back even if it went offline; anyone else gets a new
// token and a free object, or the least shared one when all are taken
func (s *Service) Join(ctx context.Context, roomID, existingUserID string) (*Assignment, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	now := s.clock()

	if existingUserID != "" {
		a, err := s.rejoin(ctx, roomID, existingUserID, now)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrUserNotInRoom) {
			return nil, err
		}
	}

	online, err := s.store.ListAssignments(ctx, roomID, s.presence.OnlineSince(now))
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}

	objectID, err := s.chooseObject(room.Theme, online)
	if err != nil {
		return nil, err
	}

	a := &Assignment{
		RoomID:   roomID,
		UserID:   s.newUserID(),
		ObjectID: objectID,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := s.store.InsertAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	s.log.Info("user assigned to object",
		"room_id", roomID,
		"user_id", a.UserID,
		"object_id", a.ObjectID,
		"online_users", len(online))

	return a, nil
}

func (s *Service) rejoin(ctx context.Context, roomID, userID string, now time.Time) (*Assignment, error) {
	a, err := s.store.GetAssignment(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	// The sweeper may delete the row between the read and this write
	if err := s.store.TouchAssignment(ctx, roomID, userID, now); err != nil {
		return nil, err
	}

	wasOnline := s.presence.IsOnline(a, now)
	wasStale := s.presence.IsStale(a, now)
	if now.After(a.LastSeen) {
		a.LastSeen = now
	}

	s.log.Debug("user rejoined",
		"room_id", roomID,
		"user_id", userID,
		"object_id", a.ObjectID,
		"was_online", wasOnline,
		"was_stale", wasStale)

	return a, nil
}

// chooseObject picks uniformly among objects no online user holds. When
// every object is held it picks among the least shared ones instead
func (s *Service) chooseObject(th theme.Theme, online []*Assignment) (string, error) {
	catalog := theme.ObjectIDs(th)
	if len(catalog) == 0 {
		return "", fmt.Errorf("theme %q has no objects", th)
	}

	holders := make(map[string]int, len(catalog))
	for _, a := range online {
		holders[a.ObjectID]++
	}

	fewest := -1
	for _, id := range catalog {
		if fewest == -1 || holders[id] < fewest {
			fewest = holders[id]
		}
	}

	candidates := make([]string, 0, len(catalog))
	for _, id := range catalog {
		if holders[id] == fewest {
			candidates = append(candidates, id)
		}
	}

	return candidates[s.pick(len(candidates))], nil
}

// Toggle flips the user's object
func (s *Service) Toggle(ctx context.Context, roomID, userID string) (*Assignment, error) {
	if userID == "" {
		return nil, ErrUserNotInRoom
	}

	a, err := s.store.ToggleAssignment(ctx, roomID, userID, s.clock())
	if err != nil {
		return nil, err
	}

	s.log.Debug("object toggled",
		"room_id", roomID,
		"user_id", userID,
		"object_id", a.ObjectID,
		"is_active", a.IsActive)

	return a, nil
}

// Heartbeat refreshes the user's last_seen
func (s *Service) Heartbeat(ctx context.Context, roomID, userID string) error {
	if userID == "" {
		return ErrUserNotInRoom
	}
	return s.store.TouchAssignment(ctx, roomID, userID, s.clock())
}

// CleanupStale deletes assignments past the stale window
func (s *Service) CleanupStale(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteStaleAssignments(ctx, s.presence.StaleBefore(s.clock()))
	if err != nil {
		return 0, fmt.Errorf("delete stale assignments: %w", err)
	}
	return deleted, nil
}
