package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testResources(t *testing.T) *ResourceRegistry {
	t.Helper()
	reg, err := NewResourceRegistry("orders", "coupons", "aff-links", "core-roles")
	require.NoError(t, err)
	return reg
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
}

func (p *recordingPublisher) Publish(c Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
}

func (p *recordingPublisher) snapshot() []Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Change(nil), p.changes...)
}

// flakyBackend fails every call with err once armed. rolesErr only fails
// role listing.
type flakyBackend struct {
	*MemoryBackend
	err      error
	rolesErr error
	panic    bool
}

func (f *flakyBackend) Roles(ctx context.Context) ([]RoleDefinition, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return f.MemoryBackend.Roles(ctx)
}

func (f *flakyBackend) Grant(ctx context.Context, key GrantKey) (bool, error) {
	if f.panic {
		panic("backend exploded")
	}
	if f.err != nil {
		return false, f.err
	}
	return f.MemoryBackend.Grant(ctx, key)
}

func (f *flakyBackend) UpsertGrant(ctx context.Context, g Grant) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryBackend.UpsertGrant(ctx, g)
}

func (f *flakyBackend) Grants(ctx context.Context, role Role) ([]Grant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryBackend.Grants(ctx, role)
}

func (f *flakyBackend) CreateRole(ctx context.Context, def RoleDefinition, grants []Grant) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryBackend.CreateRole(ctx, def, grants)
}

var errConnRefused = errors.New("dial tcp: connection refused")

// gatedBackend reads grants immediately but holds the result until release
// is closed. Each read is reported on entered.
type gatedBackend struct {
	*MemoryBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{
		MemoryBackend: NewMemoryBackend(),
		entered:       make(chan struct{}, 16),
		release:       make(chan struct{}),
	}
}

func (g *gatedBackend) Grants(ctx context.Context, role Role) ([]Grant, error) {
	grants, err := g.MemoryBackend.Grants(ctx, role)
	g.entered <- struct{}{}
	<-g.release
	return grants, err
}

func (g *gatedBackend) open() {
	g.once.Do(func() { close(g.release) })
}
