package room

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx3lixir/cofi_rooms/internal/storage/postgres"
	"github.com/rx3lixir/cofi_rooms/internal/theme"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("COFI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COFI_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	runStoreContract(t, func(t *testing.T) Store {
		_, err := pool.Exec(ctx, `TRUNCATE room_users, rooms`)
		require.NoError(t, err)
		return NewPostgresStore(pool)
	})
}

func seedRoom(t *testing.T, s Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateRoom(context.Background(), &Room{ID: id, Theme: theme.Rainy, CreatedAt: t0}))
}

func seedAssignment(t *testing.T, s Store, roomID, userID, objectID string, seen time.Time) {
	t.Helper()
	a := &Assignment{
		RoomID:   roomID,
		UserID:   userID,
		ObjectID: objectID,
		JoinedAt: seen,
		LastSeen: seen,
	}
	require.NoError(t, s.InsertAssignment(context.Background(), a))
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get room", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")

		got, err := s.GetRoomByID(ctx, "ABCD")
		require.NoError(t, err)
		assert.Equal(t, "ABCD", got.ID)
		assert.Equal(t, theme.Rainy, got.Theme)
		assert.True(t, got.CreatedAt.Equal(t0))
	})

	t.Run("duplicate room id", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")

		err := s.CreateRoom(ctx, &Room{ID: "ABCD", Theme: theme.Forest, CreatedAt: t0})
		assert.ErrorIs(t, err, ErrDuplicateRoomID)

		got, err := s.GetRoomByID(ctx, "ABCD")
		require.NoError(t, err)
		assert.Equal(t, theme.Rainy, got.Theme)
	})

	t.Run("room lookup is exact", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")

		_, err := s.GetRoomByID(ctx, "abcd")
		assert.ErrorIs(t, err, ErrRoomNotFound)
		_, err = s.GetRoomByID(ctx, "ZZZZ")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("assignment needs an existing room", func(t *testing.T) {
		s := newStore(t)
		err := s.InsertAssignment(ctx, &Assignment{
			RoomID: "NOPE", UserID: "u1", ObjectID: "cat", JoinedAt: t0, LastSeen: t0,
		})
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("list filters by last_seen and orders by join time", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedRoom(t, s, "WXYZ")

		seedAssignment(t, s, "ABCD", "late", "cat", t0.Add(2*time.Second))
		seedAssignment(t, s, "ABCD", "early", "kettle", t0.Add(time.Second))
		seedAssignment(t, s, "ABCD", "gone", "window", t0.Add(-time.Minute))
		seedAssignment(t, s, "WXYZ", "other", "cat", t0)

		all, err := s.ListAssignments(ctx, "ABCD", time.Time{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		online, err := s.ListAssignments(ctx, "ABCD", t0)
		require.NoError(t, err)
		require.Len(t, online, 2)
		assert.Equal(t, "early", online[0].UserID)
		assert.Equal(t, "late", online[1].UserID)

		// last_seen equal to the bound is not online
		edge, err := s.ListAssignments(ctx, "ABCD", t0.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, edge, 1)
		assert.Equal(t, "late", edge[0].UserID)

		empty, err := s.ListAssignments(ctx, "ZZZZ", time.Time{})
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("insert is an upsert that keeps the row", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "u1", "cat", t0)

		again := &Assignment{
			RoomID: "ABCD", UserID: "u1", ObjectID: "window",
			JoinedAt: t0.Add(time.Minute), LastSeen: t0.Add(time.Minute),
		}
		require.NoError(t, s.InsertAssignment(ctx, again))

		assert.Equal(t, "cat", again.ObjectID)
		assert.True(t, again.JoinedAt.Equal(t0))
		assert.True(t, again.LastSeen.Equal(t0.Add(time.Minute)))

		all, err := s.ListAssignments(ctx, "ABCD", time.Time{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("get assignment ignores presence", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "u1", "cat", t0.Add(-time.Hour))

		a, err := s.GetAssignment(ctx, "ABCD", "u1")
		require.NoError(t, err)
		assert.Equal(t, "cat", a.ObjectID)
		assert.False(t, a.IsActive)
		assert.Nil(t, a.ToggledAt)

		_, err = s.GetAssignment(ctx, "ABCD", "u2")
		assert.ErrorIs(t, err, ErrUserNotInRoom)
	})

	t.Run("touch never moves last_seen backwards", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "u1", "cat", t0)

		require.NoError(t, s.TouchAssignment(ctx, "ABCD", "u1", t0.Add(10*time.Second)))
		require.NoError(t, s.TouchAssignment(ctx, "ABCD", "u1", t0.Add(5*time.Second)))

		a, err := s.GetAssignment(ctx, "ABCD", "u1")
		require.NoError(t, err)
		assert.True(t, a.LastSeen.Equal(t0.Add(10*time.Second)))

		err = s.TouchAssignment(ctx, "ABCD", "nobody", t0)
		assert.ErrorIs(t, err, ErrUserNotInRoom)
	})

	t.Run("toggle flips and records time", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "u1", "cat", t0)

		a, err := s.ToggleAssignment(ctx, "ABCD", "u1", t0.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, a.IsActive)
		require.NotNil(t, a.ToggledAt)
		assert.True(t, a.ToggledAt.Equal(t0.Add(time.Second)))

		a, err = s.ToggleAssignment(ctx, "ABCD", "u1", t0.Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, a.IsActive)

		_, err = s.ToggleAssignment(ctx, "ABCD", "nobody", t0)
		assert.ErrorIs(t, err, ErrUserNotInRoom)
	})

	t.Run("concurrent toggles are not lost", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "u1", "cat", t0)

		const n = 10
		errs := make(chan error, n)
		for i := range n {
			go func() {
				_, err := s.ToggleAssignment(ctx, "ABCD", "u1", t0.Add(time.Duration(i)*time.Millisecond))
				errs <- err
			}()
		}
		for range n {
			require.NoError(t, <-errs)
		}

		a, err := s.GetAssignment(ctx, "ABCD", "u1")
		require.NoError(t, err)
		assert.False(t, a.IsActive, "an even number of flips ends where it started")
	})

	t.Run("delete stale uses an inclusive bound", func(t *testing.T) {
		s := newStore(t)
		seedRoom(t, s, "ABCD")
		seedAssignment(t, s, "ABCD", "old", "cat", t0.Add(-time.Minute))
		seedAssignment(t, s, "ABCD", "edge", "kettle", t0)
		seedAssignment(t, s, "ABCD", "fresh", "window", t0.Add(time.Second))

		deleted, err := s.DeleteStaleAssignments(ctx, t0)
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		left, err := s.ListAssignments(ctx, "ABCD", time.Time{})
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "fresh", left[0].UserID)

		_, err = s.GetRoomByID(ctx, "ABCD")
		assert.NoError(t, err, "rooms survive the sweep")
	})
}
