package rbac

import "errors"

var (
	// ErrUnknownRole indicates an operation referenced a role that was never registered.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrDuplicateRole indicates a role is already registered.
	ErrDuplicateRole = errors.New("rbac: duplicate role")
	// ErrInvalidRole indicates a malformed role slug.
	ErrInvalidRole = errors.New("rbac: invalid role")
	// ErrUnknownResource indicates a resource key outside the registry.
	ErrUnknownResource = errors.New("rbac: unknown resource")
	// ErrUnknownAction indicates an action outside view/create/edit/delete.
	ErrUnknownAction = errors.New("rbac: unknown action")
	// ErrStorageUnavailable wraps backend failures.
	ErrStorageUnavailable = errors.New("rbac: storage unavailable")
)
