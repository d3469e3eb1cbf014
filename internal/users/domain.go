package users

import (
	"time"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// User is a console account as seen by administrators.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
