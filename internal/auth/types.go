package auth

import (
	"errors"
	"time"
)

// User is a local demo account. PayerRef is the gateway-side customer
// reference created on first tokenization; it lives on the user so every
// card the user stores hangs off one payer.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	PayerRef     string    `json:"payerRef,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

var (
	ErrNotFound      = errors.New("auth: user not found")
	ErrAlreadyExists = errors.New("auth: email already registered")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)
