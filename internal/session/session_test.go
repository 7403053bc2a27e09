package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), srv
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.Touch(ctx, "a", t0))
			require.NoError(t, s.Touch(ctx, "b", t0.Add(10*time.Second)))
			require.NoError(t, s.Touch(ctx, "c", t0.Add(20*time.Second)))
			// repeated heartbeats do not double count
			require.NoError(t, s.Touch(ctx, "c", t0.Add(25*time.Second)))

			n, err := s.CountSince(ctx, t0.Add(-time.Second))
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			n, err = s.CountSince(ctx, t0.Add(10*time.Second))
			require.NoError(t, err)
			assert.EqualValues(t, 1, n, "the bound itself is excluded")

			require.NoError(t, s.Touch(ctx, "a", t0.Add(30*time.Second)))
			n, err = s.CountSince(ctx, t0.Add(10*time.Second))
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
		})
	}
}

func TestRedisStorePrunesExpiredMembers(t *testing.T) {
	s, srv := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Touch(ctx, "old", t0))
	require.NoError(t, s.Touch(ctx, "new", t0.Add(time.Minute)))

	_, err := s.CountSince(ctx, t0.Add(30*time.Second))
	require.NoError(t, err)

	members, err := srv.ZMembers(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
}

func TestTracker(t *testing.T) {
	now := t0
	tr := NewTracker(NewMemoryStore(), 0)
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	assert.ErrorIs(t, tr.Heartbeat(ctx, "  "), ErrEmptySessionID)

	require.NoError(t, tr.Heartbeat(ctx, "s1"))
	now = now.Add(20 * time.Second)
	require.NoError(t, tr.Heartbeat(ctx, "s2"))

	n, err := tr.ActiveCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	now = now.Add(15 * time.Second)
	n, err = tr.ActiveCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHandler(t *testing.T) {
	store, _ := newRedisStore(t)
	h := NewHandler(NewTracker(store, time.Minute), logger.Nop(), 0)

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/heartbeat", bytes.NewBufferString(body)))
		return rec
	}

	rec := post(`{"sessionId":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	require.Equal(t, http.StatusOK, post(`{"sessionId":"def"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"sessionId":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/count", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp CountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Count)
}
