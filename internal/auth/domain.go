package auth

import (
	"time"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// User represents a console account. Every user acts as exactly one role.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
