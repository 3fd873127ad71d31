package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the token pair plus the user it belongs to. The client holds at
// most one at a time.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Store persists a session in one scope. FileStore survives process restarts
// ("remember me"); MemStore lives only as long as the process.
type Store interface {
	Load() (Session, bool, error)
	Save(session Session) error
	Clear() error
}

type MemStore struct {
	mu      sync.Mutex
	session Session
	held    bool
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.held, nil
}

func (s *MemStore) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.held = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.held = false
	return nil
}

type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read credentials file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("parse credentials file: %w", err)
	}

	if session.RefreshToken == "" {
		return Session{}, false, nil
	}

	return session, true, nil
}

func (s *FileStore) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}
