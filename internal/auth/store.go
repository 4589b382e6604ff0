package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists users, layout-compatible with the legacy users.json.
// An empty dir keeps everything in memory.
type Store struct {
	mu    sync.RWMutex
	users []User
	path  string
}

// NewStore loads dir/users.json when dir is non-empty.
func NewStore(dir string) (*Store, error) {
	s := &Store{}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s.path = filepath.Join(dir, "users.json")
	if data, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(data, &s.users)
	}
	return s, nil
}

// Create adds a user. Emails are unique, case-insensitively.
func (s *Store) Create(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}
	s.users = append(s.users, u)
	return s.persist()
}

func (s *Store) FindByID(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *Store) FindByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// SetPayerRef records the gateway payer reference created for the user.
func (s *Store) SetPayerRef(ctx context.Context, userID, payerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i].PayerRef = payerRef
			return s.persist()
		}
	}
	return ErrNotFound
}

// persist rewrites the file. Callers hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write users: %w", err)
	}
	return os.Rename(tmp, s.path)
}
