package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Identity is what a client remembers across restarts
type Identity struct {
	RoomID    string
	UserID    string
	SessionID string
}

type IdentityStore interface {
	Load() (Identity, error)
	Save(Identity) error
}

// FileIdentity keeps the identity in a small yaml file
type FileIdentity struct {
	path string
}

// NewFileIdentity stores into path, adding a .yaml extension when it has none
func NewFileIdentity(path string) *FileIdentity {
	if filepath.Ext(path) == "" {
		path += ".yaml"
	}
	return &FileIdentity{path: path}
}

func (f *FileIdentity) Path() string {
	return f.path
}

// Load returns an empty identity when the file does not exist yet
func (f *FileIdentity) Load() (Identity, error) {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Identity{}, nil
		}
		return Identity{}, fmt.Errorf("failed to read identity: %w", err)
	}

	return Identity{
		RoomID:    v.GetString("room_id"),
		UserID:    v.GetString("user_id"),
		SessionID: v.GetString("session_id"),
	}, nil
}

func (f *FileIdentity) Save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("room_id", id.RoomID)
	v.Set("user_id", id.UserID)
	v.Set("session_id", id.SessionID)

	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	return nil
}

type MemoryIdentity struct {
	mu sync.Mutex
	id Identity
}

func (m *MemoryIdentity) Load() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryIdentity) Save(id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
