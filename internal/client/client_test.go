package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/rx3lixir/cofi_rooms/internal/http_server"
	"github.com/rx3lixir/cofi_rooms/internal/room"
	"github.com/rx3lixir/cofi_rooms/internal/session"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

type testBackend struct {
	url      string
	api      *API
	store    *room.MemoryStore
	sessions *session.MemoryStore
}

func newBackend(t *testing.T) *testBackend {
	t.Helper()
	log := logger.Nop()

	presence, err := room.NewPresence(0, 0)
	require.NoError(t, err)

	store := room.NewMemoryStore()
	sessions := session.NewMemoryStore()
	svc := room.NewService(store, presence, log)

	srv := httpserver.New("127.0.0.1:0", httpserver.Deps{
		Rooms:    room.NewHandler(svc, log, time.Second),
		Sessions: session.NewHandler(session.NewTracker(sessions, 0), log, time.Second),
		Sounds:   sound.NewHandler(nil, 0, log),
	}, httpserver.Timeouts{}, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testBackend{
		url:      ts.URL,
		api:      NewAPI(ts.URL, ts.Client()),
		store:    store,
		sessions: sessions,
	}
}

func fastOptions(onUpdate func(View)) Options {
	return Options{
		PollInterval:      20 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		SessionInterval:   20 * time.Millisecond,
		OnUpdate:          onUpdate,
		Log:               logger.Nop(),
	}
}

func TestAPIErrors(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	_, err := b.api.CreateRoom(ctx, "sunny")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid theme", apiErr.Message)

	_, err = b.api.LookupRoom(ctx, "ZZZZ")
	assert.True(t, IsNotFound(err))

	r, err := b.api.CreateRoom(ctx, "rainy")
	require.NoError(t, err)

	err = b.api.Heartbeat(ctx, r.ID, "nobody")
	assert.True(t, IsNotFound(err))
}

func TestAPIRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	r, err := b.api.CreateRoom(ctx, "forest")
	require.NoError(t, err)

	found, err := b.api.LookupRoom(ctx, "  "+r.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)

	joined, err := b.api.Join(ctx, r.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, joined.UserID)

	a, err := b.api.Toggle(ctx, r.ID, joined.UserID)
	require.NoError(t, err)
	assert.True(t, a.IsActive)

	state, err := b.api.RoomState(ctx, r.ID, joined.UserID)
	require.NoError(t, err)
	mine := View{ObjectID: joined.UserObject.ObjectID, Objects: state.Objects}
	obj, ok := mine.Mine()
	require.True(t, ok)
	assert.True(t, obj.IsActive)
	assert.True(t, obj.IsMe)

	require.NoError(t, b.api.SessionHeartbeat(ctx, "s1"))
	count, err := b.api.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	th, err := b.api.Theme(ctx, "forest")
	require.NoError(t, err)
	assert.Len(t, th.Objects, 4)
}

func TestSessionCreateAndPoll(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ids := &MemoryIdentity{}
	s := NewSession(b.api, ids, fastOptions(nil))
	t.Cleanup(s.Close)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Create(ctx, "midnight"))
	assert.Equal(t, Active, s.State())

	view := s.View()
	assert.Len(t, view.Objects, 4)
	assert.Equal(t, 1, view.Online)

	id, _ := ids.Load()
	assert.Equal(t, view.Room.ID, id.RoomID)
	assert.Equal(t, view.UserID, id.UserID)
	assert.NotEmpty(t, id.SessionID)

	// a second client shows up through polling
	other, err := b.api.Join(ctx, view.Room.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, view.UserID, other.UserID)

	assert.Eventually(t, func() bool {
		return s.View().Online == 2
	}, time.Second, 10*time.Millisecond)

	// the session heartbeat keeps this process counted
	assert.Eventually(t, func() bool {
		n, err := b.api.ActiveUsers(ctx)
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionToggleIsOptimistic(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		views []View
	)
	s := NewSession(b.api, &MemoryIdentity{}, fastOptions(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	}))
	t.Cleanup(s.Close)

	require.NoError(t, s.Create(ctx, "rainy"))
	before := s.View()

	require.NoError(t, s.Toggle(ctx))

	after := s.View()
	assert.Greater(t, after.Generation, before.Generation)
	mine, ok := after.Mine()
	require.True(t, ok)
	assert.True(t, mine.IsActive)

	mu.Lock()
	var sawFlip bool
	for _, v := range views {
		if o, ok := v.Mine(); ok && o.IsActive {
			sawFlip = true
		}
	}
	mu.Unlock()
	assert.True(t, sawFlip)

	state, err := b.api.RoomState(ctx, after.Room.ID, after.UserID)
	require.NoError(t, err)
	for _, o := range state.Objects {
		if o.ID == after.ObjectID {
			assert.True(t, o.IsActive)
		}
	}
}

func TestSessionToggleRequiresRoom(t *testing.T) {
	b := newBackend(t)
	s := NewSession(b.api, &MemoryIdentity{}, fastOptions(nil))

	assert.ErrorIs(t, s.Toggle(context.Background()), ErrNotActive)
}

func TestSessionJoinReusesToken(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	r, err := b.api.CreateRoom(ctx, "forest")
	require.NoError(t, err)
	joined, err := b.api.Join(ctx, r.ID, "")
	require.NoError(t, err)

	ids := &MemoryIdentity{}
	require.NoError(t, ids.Save(Identity{RoomID: r.ID, UserID: joined.UserID}))

	s := NewSession(b.api, ids, fastOptions(nil))
	t.Cleanup(s.Close)

	require.NoError(t, s.Join(ctx, strings.ToLower(r.ID)))
	assert.Equal(t, joined.UserID, s.View().UserID)
	assert.Equal(t, joined.UserObject.ObjectID, s.View().ObjectID)
}

func TestSessionJoinErrors(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	s := NewSession(b.api, &MemoryIdentity{}, fastOptions(nil))

	assert.ErrorIs(t, s.Join(ctx, "AB1"), ErrInvalidCode)

	err := s.Join(ctx, "QQQQ")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, Disconnected, s.State())
}

func TestSessionResume(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	t.Run("rejoins remembered room", func(t *testing.T) {
		r, err := b.api.CreateRoom(ctx, "rainy")
		require.NoError(t, err)
		joined, err := b.api.Join(ctx, r.ID, "")
		require.NoError(t, err)

		ids := &MemoryIdentity{}
		require.NoError(t, ids.Save(Identity{RoomID: r.ID, UserID: joined.UserID, SessionID: "s1"}))

		s := NewSession(b.api, ids, fastOptions(nil))
		t.Cleanup(s.Close)

		require.NoError(t, s.Resume(ctx))
		assert.Equal(t, Active, s.State())
		assert.Equal(t, joined.UserID, s.View().UserID)
	})

	t.Run("forgets missing room silently", func(t *testing.T) {
		ids := &MemoryIdentity{}
		require.NoError(t, ids.Save(Identity{RoomID: "GONE", UserID: "u1", SessionID: "s1"}))

		s := NewSession(b.api, ids, fastOptions(nil))
		t.Cleanup(s.Close)

		require.NoError(t, s.Resume(ctx))
		assert.Equal(t, Disconnected, s.State())

		id, _ := ids.Load()
		assert.Empty(t, id.RoomID)
		assert.Empty(t, id.UserID)
		assert.Equal(t, "s1", id.SessionID)
	})

	t.Run("nothing to resume", func(t *testing.T) {
		s := NewSession(b.api, &MemoryIdentity{}, fastOptions(nil))
		require.NoError(t, s.Resume(ctx))
		assert.Equal(t, Disconnected, s.State())
	})
}

func TestSessionRejoinsAfterEviction(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ids := &MemoryIdentity{}
	s := NewSession(b.api, ids, fastOptions(nil))
	t.Cleanup(s.Close)

	require.NoError(t, s.Create(ctx, "midnight"))
	first := s.View()

	_, err := b.store.DeleteStaleAssignments(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		v := s.View()
		return v.UserID != "" && v.UserID != first.UserID
	}, 2*time.Second, 10*time.Millisecond)

	v := s.View()
	assert.Greater(t, v.Generation, first.Generation)

	id, _ := ids.Load()
	assert.Equal(t, v.UserID, id.UserID)

	_, err = b.store.GetAssignment(ctx, v.Room.ID, v.UserID)
	assert.NoError(t, err)
}

func TestSessionLeaveAndClose(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ids := &MemoryIdentity{}
	s := NewSession(b.api, ids, fastOptions(nil))
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Create(ctx, "forest"))
	s.Leave()
	assert.Equal(t, Disconnected, s.State())
	assert.Empty(t, s.View().Room.ID)

	id, _ := ids.Load()
	assert.Empty(t, id.RoomID)
	assert.NotEmpty(t, id.SessionID)

	require.NoError(t, s.Create(ctx, "forest"))
	roomID := s.View().Room.ID
	s.Close()
	assert.Equal(t, Disconnected, s.State())

	id, _ = ids.Load()
	assert.Equal(t, roomID, id.RoomID)
}

func TestFileIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "identity")
	f := NewFileIdentity(path)
	assert.Equal(t, path+".yaml", f.Path())

	id, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id)

	want := Identity{RoomID: "ABCD", UserID: "user-1", SessionID: "session-1"}
	require.NoError(t, f.Save(want))

	got, err := NewFileIdentity(path + ".yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPlaybackOffset(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	loop := 30 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"at creation", created, 0},
		{"inside first loop", created.Add(12 * time.Second), 12 * time.Second},
		{"wraps", created.Add(95 * time.Second), 5 * time.Second},
		{"clock behind", created.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlaybackOffset(created, tt.now, loop))
		})
	}

	assert.Zero(t, PlaybackOffset(created, created.Add(time.Hour), 0))
}

func TestNeedsResync(t *testing.T) {
	assert.False(t, NeedsResync(10*time.Second, 10*time.Second))
	assert.False(t, NeedsResync(10*time.Second, 10500*time.Millisecond))
	assert.False(t, NeedsResync(11*time.Second, 10*time.Second))
	assert.True(t, NeedsResync(12*time.Second, 10*time.Second))
	assert.True(t, NeedsResync(8*time.Second, 10*time.Second))
}

func TestPlaylist(t *testing.T) {
	catalog := &sound.ThemeView{
		Name:          "Rainy Room",
		BackgroundURL: "/sounds/rainy/background.mp3",
		Objects: []sound.ObjectView{
			{ID: "cat", Name: "Vibing Cat", URL: "/sounds/rainy/cat-strip.wav"},
			{ID: "kettle", Name: "Kettle", URL: "/sounds/rainy/kettle-boiling.wav"},
		},
	}
	v := View{Objects: []room.ObjectState{
		{ID: "cat", IsActive: false},
		{ID: "kettle", IsActive: true},
	}}

	tracks := Playlist(v, catalog)
	require.Len(t, tracks, 2)
	assert.Empty(t, tracks[0].ObjectID)
	assert.Equal(t, "/sounds/rainy/background.mp3", tracks[0].URL)
	assert.Equal(t, "kettle", tracks[1].ObjectID)

	assert.Nil(t, Playlist(v, nil))
}
