package sound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

type mockPresigner struct {
	mock.Mock
}

func (m *mockPresigner) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api/themes", h.RegisterRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListThemesStaticURLs(t *testing.T) {
	rec := serve(NewHandler(nil, 0, logger.Nop()), "/api/themes")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThemesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Themes, 3)

	rainy := resp.Themes[0]
	assert.Equal(t, theme.Rainy, rainy.ID)
	assert.Equal(t, "/sounds/rainy/background.mp3", rainy.BackgroundURL)
	require.Len(t, rainy.Objects, 4)
	assert.Equal(t, "cat", rainy.Objects[0].ID)
	assert.Equal(t, "/sounds/rainy/cat-strip.wav", rainy.Objects[0].URL)
}

func TestGetThemePresigned(t *testing.T) {
	p := new(mockPresigner)
	p.On("PresignedURL", mock.Anything, mock.AnythingOfType("string"), 10*time.Minute).
		Return("https://s3.local/signed", nil)

	rec := serve(NewHandler(p, 10*time.Minute, logger.Nop()), "/api/themes/forest")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThemeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, theme.Forest, resp.Theme.ID)
	assert.Equal(t, "https://s3.local/signed", resp.Theme.BackgroundURL)
	for _, o := range resp.Theme.Objects {
		assert.Equal(t, "https://s3.local/signed", o.URL)
	}

	p.AssertCalled(t, "PresignedURL", mock.Anything, "sounds/forest/fire-crackle.wav", 10*time.Minute)
	p.AssertNumberOfCalls(t, "PresignedURL", 5)
}

func TestGetThemeErrors(t *testing.T) {
	rec := serve(NewHandler(nil, 0, logger.Nop()), "/api/themes/desert")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p := new(mockPresigner)
	p.On("PresignedURL", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("no credentials"))

	rec = serve(NewHandler(p, 0, logger.Nop()), "/api/themes/rainy")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "credentials")
}

type memBucket struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBucket) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memBucket) Size(ctx context.Context, key string) (int64, error) {
	data, ok := b.objects[key]
	if !ok {
		return -1, nil
	}
	return int64(len(data)), nil
}

const (
	wavHeader = "RIFF\x24\x00\x00\x00WAVEfmt "
	id3Header = "ID3\x03\x00\x00\x00\x00\x00\x00"
)

func writeSound(t *testing.T, dir string, th theme.Theme, file, content string) {
	t.Helper()
	path := filepath.Join(dir, string(th), file)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSyncDir(t *testing.T) {
	dir := t.TempDir()
	writeSound(t, dir, theme.Rainy, "cat-strip.wav", wavHeader+"meow")
	writeSound(t, dir, theme.Rainy, "background.mp3", id3Header+"rain")

	bucket := newMemBucket()
	ctx := context.Background()

	report, err := SyncDir(ctx, bucket, dir, false, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 13, len(report.Missing))
	assert.Equal(t, "audio/wav", bucket.types["sounds/rainy/cat-strip.wav"])
	assert.Equal(t, "audio/mpeg", bucket.types["sounds/rainy/background.mp3"])

	report, err = SyncDir(ctx, bucket, dir, false, logger.Nop())
	require.NoError(t, err)
	assert.Zero(t, report.Uploaded)
	assert.Equal(t, 2, report.Skipped)

	writeSound(t, dir, theme.Rainy, "cat-strip.wav", wavHeader+strings.Repeat("meow", 3))
	report, err = SyncDir(ctx, bucket, dir, false, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	report, err = SyncDir(ctx, bucket, dir, true, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Uploaded)
}

func TestSyncDirRejectsNonAudio(t *testing.T) {
	dir := t.TempDir()
	writeSound(t, dir, theme.Forest, "guitar.wav", "<html>not a sound</html>")

	bucket := newMemBucket()
	_, err := SyncDir(context.Background(), bucket, dir, false, logger.Nop())
	assert.Error(t, err)
	assert.Empty(t, bucket.objects)
}
