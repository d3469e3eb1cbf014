package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// Registry is the single source of truth for registered roles and their
// initial matrices.
type Registry struct {
	backend   Backend
	resources *ResourceRegistry
	publisher Publisher
	clock     func() time.Time
}

// NewRegistry wires a registry over backend. A nil resources registry falls
// back to DefaultResources; publisher may be nil.
func NewRegistry(backend Backend, resources *ResourceRegistry, publisher Publisher) *Registry {
	if resources == nil {
		resources = DefaultResources()
	}
	return &Registry{
		backend:   backend,
		resources: resources,
		publisher: publisher,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Resources exposes the resource registry used for validation.
func (r *Registry) Resources() *ResourceRegistry {
	return r.resources
}

// RegisterRole stores a new role with a complete matrix: every resource and
// action pair not covered by defaults is seeded to deny.
func (r *Registry) RegisterRole(ctx context.Context, role Role, label string, defaults []Grant) (RoleDefinition, error) {
	parsed, err := ParseRole(string(role))
	if err != nil {
		return RoleDefinition{}, err
	}
	seed, err := r.seed(parsed, defaults)
	if err != nil {
		return RoleDefinition{}, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = string(parsed)
	}
	def := RoleDefinition{Role: parsed, Label: label, CreatedAt: r.clock()}

	if err := r.backend.CreateRole(ctx, def, seed); err != nil {
		if errors.Is(err, ErrDuplicateRole) {
			return RoleDefinition{}, fmt.Errorf("%w: %s", ErrDuplicateRole, parsed)
		}
		return RoleDefinition{}, storageErr("register role", err)
	}
	if r.publisher != nil {
		r.publisher.Publish(Change{
			Kind:  ChangeRoleRegistered,
			Role:  parsed,
			Actor: shared.ActorFromContext(ctx),
			At:    def.CreatedAt,
		})
	}
	return def, nil
}

// GetRole returns the definition of a registered role.
func (r *Registry) GetRole(ctx context.Context, role Role) (RoleDefinition, error) {
	def, err := r.backend.Role(ctx, role)
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			return RoleDefinition{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return RoleDefinition{}, storageErr("get role", err)
	}
	return def, nil
}

// ListRoles returns a snapshot of registered roles in registration order.
func (r *Registry) ListRoles(ctx context.Context) ([]RoleDefinition, error) {
	roles, err := r.backend.Roles(ctx)
	if err != nil {
		return nil, storageErr("list roles", err)
	}
	return roles, nil
}

func (r *Registry) seed(role Role, defaults []Grant) ([]Grant, error) {
	resources := r.resources.List()
	cells := make(map[GrantKey]bool, len(resources)*4)
	for _, g := range defaults {
		if !r.resources.Known(g.Resource) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, g.Resource)
		}
		if !g.Action.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, g.Action)
		}
		cells[GrantKey{Role: role, Resource: g.Resource, Action: g.Action}] = g.Allowed
	}

	seed := make([]Grant, 0, len(resources)*4)
	for _, res := range resources {
		for _, act := range Actions() {
			key := GrantKey{Role: role, Resource: res, Action: act}
			seed = append(seed, Grant{Role: role, Resource: res, Action: act, Allowed: cells[key]})
		}
	}
	return seed, nil
}

func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrUnknownRole),
		errors.Is(err, ErrDuplicateRole),
		errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
