package rbac

import "context"

// Backend persists role definitions and grants. Implementations must apply
// each call atomically: CreateRole stores the role and its seeded grants
// together, UpsertGrant replaces a single cell.
type Backend interface {
	// CreateRole inserts a role and its full seeded matrix. Returns
	// ErrDuplicateRole when the role already exists.
	CreateRole(ctx context.Context, def RoleDefinition, grants []Grant) error

	// Role returns ErrUnknownRole when the role is not registered.
	Role(ctx context.Context, role Role) (RoleDefinition, error)

	// Roles lists registered roles in registration order.
	Roles(ctx context.Context) ([]RoleDefinition, error)

	// Grant reports the stored value of a cell; a missing cell is false.
	Grant(ctx context.Context, key GrantKey) (bool, error)

	// UpsertGrant writes a cell. Returns ErrUnknownRole for unregistered roles.
	UpsertGrant(ctx context.Context, g Grant) error

	// Grants returns every stored cell of a role.
	Grants(ctx context.Context, role Role) ([]Grant, error)
}
