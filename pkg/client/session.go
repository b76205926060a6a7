package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const sessionDir = ".angple-market"

// Session the signed-in identity of a client process.
// It is hydrated from disk once and persisted on every change.
type Session struct {
	mu    sync.RWMutex
	path  string
	token string
	user  *User
}

type sessionFile struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// DefaultSessionPath returns ~/.angple-market/session.json
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, sessionDir, "session.json"), nil
}

// NewSession creates an empty session backed by path. An empty path keeps it in memory.
func NewSession(path string) *Session {
	return &Session{path: path}
}

// Hydrate loads a persisted session. A missing file leaves the session signed out.
func (s *Session) Hydrate() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse session %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.token, s.user = f.Token, f.User
	s.mu.Unlock()
	return nil
}

// Set stores a new identity and persists it
func (s *Session) Set(token string, user *User) error {
	s.mu.Lock()
	s.token, s.user = token, user
	s.mu.Unlock()
	return s.save(&sessionFile{Token: token, User: user})
}

// Clear signs out and removes the persisted file
func (s *Session) Clear() error {
	s.mu.Lock()
	s.token, s.user = "", nil
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Token implements TokenSource
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user, nil when signed out
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether a token is present
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) save(f *sessionFile) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	// token is a credential
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
