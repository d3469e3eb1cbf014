package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// MatrixStore reads and mutates grants one cell at a time.
type MatrixStore struct {
	backend   Backend
	resources *ResourceRegistry
	publisher Publisher
	loads     singleflight.Group
	clock     func() time.Time
}

// NewMatrixStore wires a store over backend. publisher may be nil.
func NewMatrixStore(backend Backend, resources *ResourceRegistry, publisher Publisher) *MatrixStore {
	if resources == nil {
		resources = DefaultResources()
	}
	return &MatrixStore{
		backend:   backend,
		resources: resources,
		publisher: publisher,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// GetGrant returns the stored value of a cell. A cell that was never set is
// false, not an error.
func (s *MatrixStore) GetGrant(ctx context.Context, role Role, resource Resource, action Action) (bool, error) {
	if err := s.validate(resource, action); err != nil {
		return false, err
	}
	allowed, err := s.backend.Grant(ctx, GrantKey{Role: role, Resource: resource, Action: action})
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			return false, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return false, storageErr("get grant", err)
	}
	return allowed, nil
}

// SetGrant upserts a single cell and notifies subscribers once the write is
// committed. Writing the current value again is a no-op for readers.
func (s *MatrixStore) SetGrant(ctx context.Context, role Role, resource Resource, action Action, allowed bool) error {
	if err := s.validate(resource, action); err != nil {
		return err
	}
	g := Grant{Role: role, Resource: resource, Action: action, Allowed: allowed}
	if err := s.backend.UpsertGrant(ctx, g); err != nil {
		if errors.Is(err, ErrUnknownRole) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return storageErr("set grant", err)
	}
	// Readers arriving from now on must not join a load that began before
	// the write.
	s.loads.Forget(string(role))
	if s.publisher != nil {
		s.publisher.Publish(Change{
			Kind:  ChangeGrantSet,
			Role:  role,
			Grant: &g,
			Actor: shared.ActorFromContext(ctx),
			At:    s.clock(),
		})
	}
	return nil
}

// MatrixForRole materialises every resource and action of role. Concurrent
// loads for the same role share one backend round trip; the shared load is
// detached from any single caller's cancellation and each caller stops
// waiting when its own ctx is done.
func (s *MatrixStore) MatrixForRole(ctx context.Context, role Role) (Matrix, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(string(role), func() (interface{}, error) {
		return s.loadMatrix(loadCtx, role)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, storageErr("load matrix", ctx.Err())
	case res = <-ch:
	}
	err := res.Err
	if err != nil && res.Shared && errors.Is(err, ErrUnknownRole) {
		// The shared load may predate a registration that has since committed.
		var m Matrix
		m, err = s.loadMatrix(ctx, role)
		res.Val = m
	}
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return nil, storageErr("load matrix", err)
	}
	return res.Val.(Matrix).clone(), nil
}

func (s *MatrixStore) loadMatrix(ctx context.Context, role Role) (Matrix, error) {
	grants, err := s.backend.Grants(ctx, role)
	if err != nil {
		return nil, err
	}
	m := newMatrix(s.resources.List())
	for _, g := range grants {
		row, ok := m[g.Resource]
		if !ok || !g.Action.Valid() {
			continue
		}
		row[g.Action] = g.Allowed
	}
	return m, nil
}

func (s *MatrixStore) validate(resource Resource, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !s.resources.Known(resource) {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	return nil
}

func (m Matrix) clone() Matrix {
	out := make(Matrix, len(m))
	for res, row := range m {
		cp := make(map[Action]bool, len(row))
		for act, allowed := range row {
			cp[act] = allowed
		}
		out[res] = cp
	}
	return out
}
