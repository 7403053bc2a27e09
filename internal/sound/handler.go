package sound

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
	"github.com/rx3lixir/cofi_rooms/pkg/httputil"
)

const defaultURLExpiry = time.Hour

// Presigner issues download urls for stored sounds
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type ObjectView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Sound string `json:"sound"`
	URL   string `json:"url"`
}

type ThemeView struct {
	ID            theme.Theme  `json:"id"`
	Name          string       `json:"name"`
	BackgroundURL string       `json:"backgroundUrl"`
	Objects       []ObjectView `json:"objects"`
}

type ThemesResponse struct {
	Themes []ThemeView `json:"themes"`
}

type ThemeResponse struct {
	Theme ThemeView `json:"theme"`
}

// Handler serves the theme catalogs with playable sound urls. Without a
// presigner the urls point at the static /sounds tree
type Handler struct {
	presigner Presigner
	expiry    time.Duration
	log       *slog.Logger
}

func NewHandler(presigner Presigner, expiry time.Duration, log *slog.Logger) *Handler {
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &Handler{presigner: presigner, expiry: expiry, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", httputil.Handler(h.HandleListThemes, h.log))
	r.Get("/{theme}", httputil.Handler(h.HandleGetTheme, h.log))
}

func (h *Handler) HandleListThemes(w http.ResponseWriter, r *http.Request) error {
	views := make([]ThemeView, 0, len(theme.All()))
	for _, t := range theme.All() {
		cfg, _ := theme.Lookup(t)
		view, err := h.view(r.Context(), cfg)
		if err != nil {
			return httputil.Internal(err)
		}
		views = append(views, view)
	}

	return httputil.RespondJSON(w, http.StatusOK, ThemesResponse{Themes: views})
}

func (h *Handler) HandleGetTheme(w http.ResponseWriter, r *http.Request) error {
	raw, err := httputil.URLParam(r, "theme")
	if err != nil {
		return err
	}

	t, err := theme.Parse(raw)
	if err != nil {
		return httputil.NotFound("Theme not found")
	}

	cfg, _ := theme.Lookup(t)
	view, err := h.view(r.Context(), cfg)
	if err != nil {
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, ThemeResponse{Theme: view})
}

func (h *Handler) view(ctx context.Context, cfg theme.Config) (ThemeView, error) {
	bg, err := h.url(ctx, cfg.Theme, cfg.Background)
	if err != nil {
		return ThemeView{}, err
	}

	view := ThemeView{
		ID:            cfg.Theme,
		Name:          cfg.Name,
		BackgroundURL: bg,
		Objects:       make([]ObjectView, len(cfg.Objects)),
	}

	for i, o := range cfg.Objects {
		url, err := h.url(ctx, cfg.Theme, o.Sound)
		if err != nil {
			return ThemeView{}, err
		}
		view.Objects[i] = ObjectView{ID: o.ID, Name: o.Name, Sound: o.Sound, URL: url}
	}

	return view, nil
}

func (h *Handler) url(ctx context.Context, t theme.Theme, file string) (string, error) {
	key := theme.SoundKey(t, file)
	if h.presigner == nil {
		return "/" + key, nil
	}
	return h.presigner.PresignedURL(ctx, key, h.expiry)
}
