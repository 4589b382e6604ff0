package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionTTL = 24 * time.Hour

// Service implements registration and login for local demo accounts.
type Service struct {
	store *Store
	now   func() time.Time
}

// NewService wires the user store.
func NewService(store *Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an account and returns the stored user.
func (s *Service) Register(ctx context.Context, email, name, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	u, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		// Same failure for unknown email and bad password.
		return User{}, "", ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, "", ErrUnauthorized
	}
	token, err := GenerateToken(u.ID, u.Email, sessionTTL)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// Authenticate resolves a bearer token to a user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	u, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	return u, nil
}

// Users exposes the underlying store; the checkout service needs it to
// persist payer references.
func (s *Service) Users() *Store { return s.store }
