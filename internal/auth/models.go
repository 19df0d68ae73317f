package auth

import (
	"errors"
	"time"
)

const (
	// CookieName holds the session token on the client.
	CookieName = "admin_token"
	DefaultTTL = 7 * 24 * time.Hour
	// token length in random bytes (256 bits)
	tokenBytes = 32

	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmailTaken         = errors.New("email already in use")
	ErrCreateSession      = errors.New("could not create session")
	ErrUpdatePassword     = errors.New("failed to update password")
)

// ValidationError is returned for malformed input, before any store is touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Admin struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        int
	AdminID   int
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) ExpiredAt(t time.Time) bool {
	return !s.ExpiresAt.After(t)
}
