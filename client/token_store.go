package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoredToken is the bearer token persisted between runs.
type StoredToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore holds the session token the client sends as a bearer token.
type TokenStore interface {
	Load() (string, error)
	Save(token StoredToken) error
	Clear() error
}

type MemoryTokenStore struct {
	mu    sync.Mutex
	token StoredToken
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expired(s.token) {
		return "", nil
	}
	return s.token.Token, nil
}

func (s *MemoryTokenStore) Save(token StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = StoredToken{}
	return nil
}

// FileTokenStore keeps the token in a JSON file readable only by its owner.
type FileTokenStore struct {
	Path string
	mu   sync.Mutex
}

// DefaultTokenPath is ~/.delified/token.json.
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".delified", "token.json"), nil
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return "", fmt.Errorf("failed to parse token file: %w", err)
	}
	if expired(token) {
		return "", nil
	}
	return token.Token, nil
}

func (s *FileTokenStore) Save(token StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func expired(t StoredToken) bool {
	return t.Token == "" || (!t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt))
}
