package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rx3lixir/cofi_rooms/internal/room"
)

type State int

const (
	Disconnected State = iota
	Joining
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotActive   = errors.New("not in a room")
	ErrInvalidCode = errors.New("room code must be 4 letters")
)

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultSessionInterval   = 15 * time.Second
)

type Options struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	SessionInterval   time.Duration

	// OnUpdate receives every new view. It may be called from several
	// goroutines and must not block for long
	OnUpdate func(View)

	Log *slog.Logger
}

// View is the client's picture of the room it is in
type View struct {
	Room       room.Room
	UserID     string
	ObjectID   string
	Objects    []room.ObjectState
	Online     int
	Generation uint64

	// OwnActive is is_active of the user's own row. On a shared object it can
	// differ from what the object shows, and a toggle always displays !OwnActive
	OwnActive bool
}

func (v View) clone() View {
	v.Objects = append([]room.ObjectState(nil), v.Objects...)
	return v
}

// Mine returns the object the user holds
func (v View) Mine() (room.ObjectState, bool) {
	for _, o := range v.Objects {
		if o.ID == v.ObjectID {
			return o, true
		}
	}
	return room.ObjectState{}, false
}

// Session drives one client through Disconnected -> Joining -> Active and
// back. While Active it polls room state and sends heartbeats in the
// background. Every change of membership bumps the generation so late poll
// answers from an earlier membership are dropped
type Session struct {
	api  *API
	ids  IdentityStore
	opts Options
	log  *slog.Logger

	// enterMu serializes membership changes so only one set of room tasks
	// ever exists
	enterMu sync.Mutex

	mu    sync.Mutex
	state State
	gen   uint64
	view  View
	stop  context.CancelFunc
	tasks *errgroup.Group

	idMu sync.Mutex

	sessionStop context.CancelFunc
	sessionDone chan struct{}
}

func NewSession(api *API, ids IdentityStore, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.SessionInterval <= 0 {
		opts.SessionInterval = DefaultSessionInterval
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{api: api, ids: ids, opts: opts, log: log}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Start begins the process-wide session heartbeat. It runs until Close
func (s *Session) Start(ctx context.Context) error {
	var sessionID string
	err := s.updateIdentity(func(id *Identity) {
		if id.SessionID == "" {
			id.SessionID = uuid.NewString()
		}
		sessionID = id.SessionID
	})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.sessionStop = cancel
	s.sessionDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		beat := func(ctx context.Context) {
			if err := s.api.SessionHeartbeat(ctx, sessionID); err != nil && ctx.Err() == nil {
				s.log.Warn("session heartbeat failed", "error", err)
			}
		}
		beat(loopCtx)
		s.every(loopCtx, s.opts.SessionInterval, beat)
	}()

	return nil
}

// Resume silently re-enters the room remembered from the last run. Any
// failure forgets that room and leaves the session Disconnected
func (s *Session) Resume(ctx context.Context) error {
	id, err := s.loadIdentity()
	if err != nil {
		s.log.Warn("failed to load identity", "error", err)
		return nil
	}
	if id.RoomID == "" {
		return nil
	}

	s.enterMu.Lock()
	defer s.enterMu.Unlock()

	if err := s.enterLocked(ctx, id.RoomID, id.UserID); err != nil {
		s.log.Info("could not resume room",
			"room_id", id.RoomID,
			"error", err)
		s.forgetRoom()
	}
	return nil
}

// Create makes a new room and enters it
func (s *Session) Create(ctx context.Context, theme string) error {
	r, err := s.api.CreateRoom(ctx, theme)
	if err != nil {
		return err
	}
	return s.enter(ctx, r.ID, "")
}

// Join enters the room with the given code, reusing the remembered user
// token when it belongs to the same room
func (s *Session) Join(ctx context.Context, code string) error {
	code = room.NormalizeCode(code)
	if !room.ValidCode(code) {
		return ErrInvalidCode
	}

	r, err := s.api.LookupRoom(ctx, code)
	if err != nil {
		return err
	}

	var userID string
	if id, err := s.loadIdentity(); err == nil && id.RoomID == r.ID {
		userID = id.UserID
	}

	return s.enter(ctx, r.ID, userID)
}

func (s *Session) enter(ctx context.Context, roomID, userID string) error {
	s.enterMu.Lock()
	defer s.enterMu.Unlock()
	return s.enterLocked(ctx, roomID, userID)
}

func (s *Session) enterLocked(ctx context.Context, roomID, userID string) error {
	s.stopTasks()
	s.setState(Joining)

	joined, err := s.api.Join(ctx, roomID, userID)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	state, err := s.api.RoomState(ctx, roomID, joined.UserID)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("load room %s: %w", roomID, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(loopCtx)

	s.mu.Lock()
	s.gen++
	s.view = View{
		Room:       state.Room,
		UserID:     joined.UserID,
		ObjectID:   joined.UserObject.ObjectID,
		Objects:    state.Objects,
		Online:     len(state.Users),
		Generation: s.gen,
		OwnActive:  joined.UserObject.IsActive,
	}
	s.stop = cancel
	s.tasks = g
	s.state = Active
	view := s.view.clone()
	s.mu.Unlock()

	g.Go(func() error {
		s.every(gctx, s.opts.PollInterval, s.poll)
		return nil
	})
	g.Go(func() error {
		s.every(gctx, s.opts.HeartbeatInterval, s.heartbeat)
		return nil
	})

	if err := s.updateIdentity(func(id *Identity) {
		id.RoomID = view.Room.ID
		id.UserID = view.UserID
	}); err != nil {
		s.log.Warn("failed to persist identity", "error", err)
	}

	s.log.Info("entered room",
		"room_id", view.Room.ID,
		"user_id", view.UserID,
		"object_id", view.ObjectID)

	s.notify(view)
	return nil
}

// Leave stops the background tasks and forgets the room
func (s *Session) Leave() {
	s.enterMu.Lock()
	defer s.enterMu.Unlock()

	s.stopTasks()
	s.forgetRoom()
}

// Close stops everything but keeps the identity so the next run can Resume
func (s *Session) Close() {
	s.enterMu.Lock()
	s.stopTasks()
	s.enterMu.Unlock()

	s.mu.Lock()
	stop, done := s.sessionStop, s.sessionDone
	s.sessionStop, s.sessionDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Toggle flips the user's object locally right away, then on the server.
// Polls issued before the flip are discarded
func (s *Session) Toggle(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.gen++
	gen := s.gen
	s.view.Generation = gen
	// Our toggle becomes the latest one for the object, so it shows the
	// flipped value of our own row
	s.view.OwnActive = !s.view.OwnActive
	for i := range s.view.Objects {
		if s.view.Objects[i].ID == s.view.ObjectID {
			s.view.Objects[i].IsActive = s.view.OwnActive
		}
	}
	roomID, userID := s.view.Room.ID, s.view.UserID
	view := s.view.clone()
	s.mu.Unlock()

	s.notify(view)

	a, err := s.api.Toggle(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}

	// The server's answer is now the latest toggle for this object. Polls
	// issued while the request was in flight may predate it
	s.mu.Lock()
	if gen == s.gen {
		s.gen++
		s.view.Generation = s.gen
		s.view.OwnActive = a.IsActive
		for i := range s.view.Objects {
			if s.view.Objects[i].ID == a.ObjectID {
				s.view.Objects[i].IsActive = a.IsActive
			}
		}
	}
	s.mu.Unlock()

	return nil
}

func (s *Session) poll(ctx context.Context) {
	s.mu.Lock()
	gen, roomID, userID := s.gen, s.view.Room.ID, s.view.UserID
	s.mu.Unlock()

	state, err := s.api.RoomState(ctx, roomID, userID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("poll failed", "room_id", roomID, "error", err)
		}
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state != Active {
		s.mu.Unlock()
		s.log.Debug("dropping stale poll", "generation", gen)
		return
	}
	s.view.Room = state.Room
	s.view.Objects = state.Objects
	s.view.Online = len(state.Users)
	for _, u := range state.Users {
		if u.UserID == s.view.UserID {
			s.view.OwnActive = u.IsActive
		}
	}
	view := s.view.clone()
	s.mu.Unlock()

	s.notify(view)
}

func (s *Session) heartbeat(ctx context.Context) {
	s.mu.Lock()
	gen, roomID, userID := s.gen, s.view.Room.ID, s.view.UserID
	s.mu.Unlock()

	err := s.api.Heartbeat(ctx, roomID, userID)
	switch {
	case err == nil:
	case IsNotFound(err):
		s.rejoin(ctx, gen, roomID, userID)
	case ctx.Err() == nil:
		s.log.Warn("heartbeat failed", "room_id", roomID, "error", err)
	}
}

// rejoin recovers from the server having dropped our assignment
func (s *Session) rejoin(ctx context.Context, gen uint64, roomID, userID string) {
	joined, err := s.api.Join(ctx, roomID, userID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("rejoin failed", "room_id", roomID, "error", err)
		}
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state != Active {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.view.Generation = s.gen
	s.view.UserID = joined.UserID
	s.view.ObjectID = joined.UserObject.ObjectID
	s.view.OwnActive = joined.UserObject.IsActive
	view := s.view.clone()
	s.mu.Unlock()

	if joined.UserID != userID {
		if err := s.updateIdentity(func(id *Identity) { id.UserID = joined.UserID }); err != nil {
			s.log.Warn("failed to persist identity", "error", err)
		}
	}

	s.log.Info("rejoined room after eviction",
		"room_id", roomID,
		"user_id", joined.UserID,
		"object_id", joined.UserObject.ObjectID)

	s.notify(view)
}

func (s *Session) stopTasks() {
	s.mu.Lock()
	stop, tasks := s.stop, s.tasks
	s.stop, s.tasks = nil, nil
	if stop != nil {
		s.state = Leaving
	}
	s.gen++
	s.mu.Unlock()

	if stop != nil {
		stop()
		_ = tasks.Wait()
	}

	s.setState(Disconnected)
}

func (s *Session) forgetRoom() {
	s.mu.Lock()
	s.view = View{}
	s.mu.Unlock()

	if err := s.updateIdentity(func(id *Identity) {
		id.RoomID = ""
		id.UserID = ""
	}); err != nil {
		s.log.Warn("failed to clear identity", "error", err)
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Session) notify(v View) {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(v)
	}
}

func (s *Session) loadIdentity() (Identity, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return s.ids.Load()
}

func (s *Session) updateIdentity(fn func(*Identity)) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id, err := s.ids.Load()
	if err != nil {
		return err
	}
	fn(&id)
	return s.ids.Save(id)
}
