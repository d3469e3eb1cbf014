// Package session binds authenticated principals to a role for a bounded
// time and answers authorization questions on their behalf.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

var (
	// ErrNotFound indicates the session does not exist in the store.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidSession indicates a malformed bind request.
	ErrInvalidSession = errors.New("session: invalid session")
)

// Session is a time-bounded binding of a principal to one role.
type Session struct {
	ID        string    `json:"id"`
	Principal string    `json:"principal"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NewID returns a random session identifier.
func NewID() string {
	return uuid.NewString()
}
