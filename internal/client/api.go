package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rx3lixir/cofi_rooms/internal/room"
	"github.com/rx3lixir/cofi_rooms/internal/session"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// API is a typed client for the /api endpoints
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		http:    httpClient,
	}
}

func (a *API) CreateRoom(ctx context.Context, theme string) (*room.Room, error) {
	var resp room.RoomResponse
	if err := a.do(ctx, http.MethodPost, "/rooms", room.CreateRoomRequest{Theme: theme}, &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

// LookupRoom checks that a typed-in code names an existing room
func (a *API) LookupRoom(ctx context.Context, code string) (*room.Room, error) {
	var resp room.RoomResponse
	if err := a.do(ctx, http.MethodPost, "/rooms/join", room.LookupRoomRequest{RoomID: code}, &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

func (a *API) RoomState(ctx context.Context, roomID, userID string) (*room.RoomStateResponse, error) {
	path := "/rooms/" + url.PathEscape(roomID)
	if userID != "" {
		path += "?userId=" + url.QueryEscape(userID)
	}

	var resp room.RoomStateResponse
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Join asks for an assignment. An empty userID requests a new one
func (a *API) Join(ctx context.Context, roomID, userID string) (*room.JoinRoomResponse, error) {
	var body any
	if userID != "" {
		body = room.JoinRoomRequest{UserID: userID}
	}

	var resp room.JoinRoomResponse
	if err := a.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/join", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) Toggle(ctx context.Context, roomID, userID string) (*room.Assignment, error) {
	var resp room.ToggleResponse
	if err := a.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/toggle", room.ToggleRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp.UserObject, nil
}

func (a *API) Heartbeat(ctx context.Context, roomID, userID string) error {
	return a.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/heartbeat", room.HeartbeatRequest{UserID: userID}, nil)
}

func (a *API) SessionHeartbeat(ctx context.Context, sessionID string) error {
	return a.do(ctx, http.MethodPost, "/heartbeat", session.HeartbeatRequest{SessionID: sessionID}, nil)
}

func (a *API) ActiveUsers(ctx context.Context) (int64, error) {
	var resp session.CountResponse
	if err := a.do(ctx, http.MethodGet, "/users/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (a *API) Theme(ctx context.Context, theme string) (*sound.ThemeView, error) {
	var resp sound.ThemeResponse
	if err := a.do(ctx, http.MethodGet, "/themes/"+url.PathEscape(theme), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Theme, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
