package rbac

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role identifies a category of principal such as admin-master or affiliate.
type Role string

// Roles shipped with the console. Any of them still has to be registered
// before it can be bound to a session.
const (
	RoleAdminMaster      Role = "admin-master"
	RoleAdminOperational Role = "admin-operational"
	RoleFinance          Role = "finance"
	RoleMarketing        Role = "marketing"
	RoleAffiliate        Role = "affiliate"
	RoleCustomer         Role = "customer"
	RoleSeller           Role = "seller"
)

var roleSlug = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// ParseRole normalises and validates a role slug.
func ParseRole(raw string) (Role, error) {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if !roleSlug.MatchString(slug) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return Role(slug), nil
}

// Resource is the stable key of a capability area, usually one admin screen.
type Resource string

// Action is one of the four operations a grant can cover.
type Action string

// Supported actions. The set is closed.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Actions returns every action in display order.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}
}

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// ParseAction converts user input into an Action.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	return a, nil
}

// Grant is the stored decision for one (role, resource, action) triple.
type Grant struct {
	Role     Role     `json:"role" yaml:"-"`
	Resource Resource `json:"resource" yaml:"resource"`
	Action   Action   `json:"action" yaml:"action"`
	Allowed  bool     `json:"allowed" yaml:"allowed"`
}

// Key returns the grant's storage key.
func (g Grant) Key() GrantKey {
	return GrantKey{Role: g.Role, Resource: g.Resource, Action: g.Action}
}

// GrantKey addresses a single matrix cell.
type GrantKey struct {
	Role     Role
	Resource Resource
	Action   Action
}

func (k GrantKey) String() string {
	return string(k.Role) + "/" + string(k.Resource) + "/" + string(k.Action)
}

// RoleDefinition describes a registered role.
type RoleDefinition struct {
	Role      Role      `json:"role"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// Matrix is the materialised grid of one role: every known resource against
// every action.
type Matrix map[Resource]map[Action]bool

// Allowed looks up a cell, treating missing rows or columns as deny.
func (m Matrix) Allowed(resource Resource, action Action) bool {
	row, ok := m[resource]
	if !ok {
		return false
	}
	return row[action]
}

func newMatrix(resources []Resource) Matrix {
	m := make(Matrix, len(resources))
	for _, res := range resources {
		row := make(map[Action]bool, 4)
		for _, act := range Actions() {
			row[act] = false
		}
		m[res] = row
	}
	return m
}
