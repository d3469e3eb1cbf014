// Package pgstore persists the permission matrix in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrine-commerce/vitrine/internal/platform/db"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

var _ rbac.Backend = (*Store)(nil)

// Store implements rbac.Backend on top of rbac_roles and rbac_grants.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateRole inserts the role and its seeded grants in one transaction.
func (s *Store) CreateRole(ctx context.Context, def rbac.RoleDefinition, grants []rbac.Grant) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO rbac_roles (role_id, label, created_at) VALUES ($1, $2, $3)`,
			string(def.Role), def.Label, def.CreatedAt)
		if err != nil {
			if db.IsCode(err, db.CodeUniqueViolation) {
				return rbac.ErrDuplicateRole
			}
			return fmt.Errorf("pgstore: insert role: %w", err)
		}
		if len(grants) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, g := range grants {
			batch.Queue(`INSERT INTO rbac_grants (role_id, resource, action, allowed) VALUES ($1, $2, $3, $4)`,
				string(def.Role), string(g.Resource), string(g.Action), g.Allowed)
		}
		results := tx.SendBatch(ctx, batch)
		for range grants {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("pgstore: seed grants: %w", err)
			}
		}
		return results.Close()
	})
}

// Role fetches a role definition.
func (s *Store) Role(ctx context.Context, role rbac.Role) (rbac.RoleDefinition, error) {
	def := rbac.RoleDefinition{Role: role}
	err := s.pool.QueryRow(ctx, `SELECT label, created_at FROM rbac_roles WHERE role_id = $1`, string(role)).
		Scan(&def.Label, &def.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.RoleDefinition{}, rbac.ErrUnknownRole
		}
		return rbac.RoleDefinition{}, err
	}
	return def, nil
}

// Roles lists roles in registration order.
func (s *Store) Roles(ctx context.Context) ([]rbac.RoleDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, label, created_at FROM rbac_roles ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.RoleDefinition
	for rows.Next() {
		var (
			def rbac.RoleDefinition
			id  string
		)
		if err := rows.Scan(&id, &def.Label, &def.CreatedAt); err != nil {
			return nil, err
		}
		def.Role = rbac.Role(id)
		roles = append(roles, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// Grant returns a single cell; the join distinguishes an unknown role from
// a missing cell.
func (s *Store) Grant(ctx context.Context, key rbac.GrantKey) (bool, error) {
	var allowed *bool
	err := s.pool.QueryRow(ctx, `
		SELECT g.allowed
		FROM rbac_roles r
		LEFT JOIN rbac_grants g ON g.role_id = r.role_id AND g.resource = $2 AND g.action = $3
		WHERE r.role_id = $1`, string(key.Role), string(key.Resource), string(key.Action)).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, rbac.ErrUnknownRole
		}
		return false, err
	}
	return allowed != nil && *allowed, nil
}

// UpsertGrant writes one cell with last-write-wins semantics.
func (s *Store) UpsertGrant(ctx context.Context, g rbac.Grant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rbac_grants (role_id, resource, action, allowed, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (role_id, resource, action)
		DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = EXCLUDED.updated_at`,
		string(g.Role), string(g.Resource), string(g.Action), g.Allowed)
	if err != nil {
		if db.IsCode(err, db.CodeForeignKeyViolation) {
			return rbac.ErrUnknownRole
		}
		return err
	}
	return nil
}

// Grants returns every stored cell of role.
func (s *Store) Grants(ctx context.Context, role rbac.Role) ([]rbac.Grant, error) {
	if _, err := s.Role(ctx, role); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT resource, action, allowed FROM rbac_grants WHERE role_id = $1`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []rbac.Grant
	for rows.Next() {
		var res, act string
		g := rbac.Grant{Role: role}
		if err := rows.Scan(&res, &act, &g.Allowed); err != nil {
			return nil, err
		}
		g.Resource = rbac.Resource(res)
		g.Action = rbac.Action(act)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
