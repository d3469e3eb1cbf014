// Package backendtest holds the behaviour every rbac.Backend must share.
// Implementations run it from their own tests:
//
//	suite.Run(t, &backendtest.Suite{NewBackend: newStore})
package backendtest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// Suite exercises a Backend. NewBackend must return an empty backend and is
// called before each test.
type Suite struct {
	suite.Suite
	NewBackend func() rbac.Backend

	backend rbac.Backend
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.backend = s.NewBackend()
	s.ctx = context.Background()
}

func (s *Suite) role(name rbac.Role, cells ...rbac.Grant) rbac.RoleDefinition {
	def := rbac.RoleDefinition{Role: name, Label: string(name) + " label", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	for i := range cells {
		cells[i].Role = name
	}
	s.Require().NoError(s.backend.CreateRole(s.ctx, def, cells))
	return def
}

func (s *Suite) TestCreateRoleRoundTrip() {
	def := s.role("finance", rbac.Grant{Resource: "orders", Action: rbac.ActionView, Allowed: true})

	got, err := s.backend.Role(s.ctx, "finance")
	s.Require().NoError(err)
	s.Equal(def.Role, got.Role)
	s.Equal(def.Label, got.Label)
	s.WithinDuration(def.CreatedAt, got.CreatedAt, time.Millisecond)

	allowed, err := s.backend.Grant(s.ctx, rbac.GrantKey{Role: "finance", Resource: "orders", Action: rbac.ActionView})
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *Suite) TestDuplicateRoleKeepsOriginal() {
	s.role("finance", rbac.Grant{Resource: "orders", Action: rbac.ActionView, Allowed: true})

	err := s.backend.CreateRole(s.ctx, rbac.RoleDefinition{Role: "finance", Label: "other", CreatedAt: time.Now()},
		[]rbac.Grant{{Role: "finance", Resource: "orders", Action: rbac.ActionView, Allowed: false}})
	s.ErrorIs(err, rbac.ErrDuplicateRole)

	got, err := s.backend.Role(s.ctx, "finance")
	s.Require().NoError(err)
	s.Equal("finance label", got.Label)
	allowed, err := s.backend.Grant(s.ctx, rbac.GrantKey{Role: "finance", Resource: "orders", Action: rbac.ActionView})
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *Suite) TestRolesInRegistrationOrder() {
	s.role("seller")
	s.role("affiliate")
	s.role("marketing")

	roles, err := s.backend.Roles(s.ctx)
	s.Require().NoError(err)
	names := make([]rbac.Role, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Role)
	}
	s.Equal([]rbac.Role{"seller", "affiliate", "marketing"}, names)
}

func (s *Suite) TestUnknownRole() {
	_, err := s.backend.Role(s.ctx, "ghost")
	s.ErrorIs(err, rbac.ErrUnknownRole)

	_, err = s.backend.Grant(s.ctx, rbac.GrantKey{Role: "ghost", Resource: "orders", Action: rbac.ActionView})
	s.ErrorIs(err, rbac.ErrUnknownRole)

	err = s.backend.UpsertGrant(s.ctx, rbac.Grant{Role: "ghost", Resource: "orders", Action: rbac.ActionView, Allowed: true})
	s.ErrorIs(err, rbac.ErrUnknownRole)

	_, err = s.backend.Grants(s.ctx, "ghost")
	s.ErrorIs(err, rbac.ErrUnknownRole)
}

func (s *Suite) TestMissingCellIsDeny() {
	s.role("customer")
	allowed, err := s.backend.Grant(s.ctx, rbac.GrantKey{Role: "customer", Resource: "orders", Action: rbac.ActionDelete})
	s.Require().NoError(err)
	s.False(allowed)
}

func (s *Suite) TestUpsertLastWriteWins() {
	s.role("finance")
	key := rbac.GrantKey{Role: "finance", Resource: "orders", Action: rbac.ActionEdit}

	for _, v := range []bool{true, true, false, true} {
		s.Require().NoError(s.backend.UpsertGrant(s.ctx, rbac.Grant{Role: key.Role, Resource: key.Resource, Action: key.Action, Allowed: v}))
	}
	allowed, err := s.backend.Grant(s.ctx, key)
	s.Require().NoError(err)
	s.True(allowed)

	grants, err := s.backend.Grants(s.ctx, "finance")
	s.Require().NoError(err)
	s.Len(grants, 1)
	s.Equal(rbac.Grant{Role: "finance", Resource: "orders", Action: rbac.ActionEdit, Allowed: true}, grants[0])
}

func (s *Suite) TestGrantsAreScopedToRole() {
	s.role("finance", rbac.Grant{Resource: "orders", Action: rbac.ActionView, Allowed: true})
	s.role("seller", rbac.Grant{Resource: "products-stock", Action: rbac.ActionEdit, Allowed: true},
		rbac.Grant{Resource: "orders", Action: rbac.ActionView, Allowed: false})

	grants, err := s.backend.Grants(s.ctx, "seller")
	s.Require().NoError(err)
	s.Len(grants, 2)
	for _, g := range grants {
		s.Equal(rbac.Role("seller"), g.Role)
	}
}

func (s *Suite) TestConcurrentUpserts() {
	s.role("marketing")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			act := rbac.Actions()[i%4]
			s.NoError(s.backend.UpsertGrant(s.ctx, rbac.Grant{Role: "marketing", Resource: "coupons", Action: act, Allowed: true}))
		}(i)
	}
	wg.Wait()

	for _, act := range rbac.Actions() {
		allowed, err := s.backend.Grant(s.ctx, rbac.GrantKey{Role: "marketing", Resource: "coupons", Action: act})
		s.Require().NoError(err)
		s.True(allowed, string(act))
	}
}

func (s *Suite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.backend.Roles(ctx)
	s.Error(err)
}
