package rbac

import (
	"context"
	"sync"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps roles and grants in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	order  []Role
	roles  map[Role]RoleDefinition
	grants map[GrantKey]bool
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		roles:  make(map[Role]RoleDefinition),
		grants: make(map[GrantKey]bool),
	}
}

func (b *MemoryBackend) CreateRole(ctx context.Context, def RoleDefinition, grants []Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.roles[def.Role]; ok {
		return ErrDuplicateRole
	}
	b.roles[def.Role] = def
	b.order = append(b.order, def.Role)
	for _, g := range grants {
		g.Role = def.Role
		b.grants[g.Key()] = g.Allowed
	}
	return nil
}

func (b *MemoryBackend) Role(ctx context.Context, role Role) (RoleDefinition, error) {
	if err := ctx.Err(); err != nil {
		return RoleDefinition{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	def, ok := b.roles[role]
	if !ok {
		return RoleDefinition{}, ErrUnknownRole
	}
	return def, nil
}

func (b *MemoryBackend) Roles(ctx context.Context) ([]RoleDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]RoleDefinition, 0, len(b.order))
	for _, role := range b.order {
		out = append(out, b.roles[role])
	}
	return out, nil
}

func (b *MemoryBackend) Grant(ctx context.Context, key GrantKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.roles[key.Role]; !ok {
		return false, ErrUnknownRole
	}
	return b.grants[key], nil
}

func (b *MemoryBackend) UpsertGrant(ctx context.Context, g Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.roles[g.Role]; !ok {
		return ErrUnknownRole
	}
	b.grants[g.Key()] = g.Allowed
	return nil
}

func (b *MemoryBackend) Grants(ctx context.Context, role Role) ([]Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.roles[role]; !ok {
		return nil, ErrUnknownRole
	}
	var out []Grant
	for key, allowed := range b.grants {
		if key.Role != role {
			continue
		}
		out = append(out, Grant{Role: key.Role, Resource: key.Resource, Action: key.Action, Allowed: allowed})
	}
	return out, nil
}
