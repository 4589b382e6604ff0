// Package cards holds stored-card tokens. A token is chargeable only when
// it is vaulted, i.e. the gateway returned real payer and card references
// for it; everything else is a reference-only record kept so the UI can
// show the card, never charge it.
package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Card is one stored-card token. JSON field names match the legacy
// stored-cards.json layout.
type Card struct {
	Token         string     `json:"token"`
	UserID        string     `json:"userId,omitempty"`
	PayerRef      string     `json:"gatewayPayerRef,omitempty"`
	CardRef       string     `json:"gatewayCardRef,omitempty"`
	MaskedPAN     string     `json:"maskedCardNumber"`
	Brand         string     `json:"cardBrand"`
	HolderName    string     `json:"cardHolderName"`
	ExpiryMonth   string     `json:"expiryMonth"`
	ExpiryYear    string     `json:"expiryYear"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	StoredInVault bool       `json:"storedInVault"`
}

var ErrNotFound = errors.New("cards: token not found")

// Store keeps card tokens in memory, optionally mirrored to a JSON file.
// An empty dir disables persistence (tests, credential-less demo runs).
type Store struct {
	mu    sync.RWMutex
	cards []Card
	path  string
}

// NewStore loads dir/stored-cards.json when dir is non-empty.
func NewStore(dir string) (*Store, error) {
	s := &Store{}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s.path = filepath.Join(dir, "stored-cards.json")
	if data, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(data, &s.cards)
	}
	return s, nil
}

func (s *Store) Save(ctx context.Context, c Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, c)
	return s.persist()
}

func (s *Store) Find(ctx context.Context, token string) (Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cards {
		if c.Token == token {
			return c, nil
		}
	}
	return Card{}, ErrNotFound
}

func (s *Store) List(ctx context.Context) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Card, len(s.cards))
	copy(out, s.cards)
	return out, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Card, 0)
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cards {
		if c.Token == token {
			s.cards = append(s.cards[:i], s.cards[i+1:]...)
			return s.persist()
		}
	}
	return ErrNotFound
}

// TouchLastUsed stamps a successful charge. This is the one mutation a
// card record sees after creation.
func (s *Store) TouchLastUsed(ctx context.Context, token string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cards {
		if s.cards[i].Token == token {
			used := t
			s.cards[i].LastUsed = &used
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
	data, err := json.MarshalIndent(s.cards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stored cards: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write stored cards: %w", err)
	}
	return os.Rename(tmp, s.path)
}
