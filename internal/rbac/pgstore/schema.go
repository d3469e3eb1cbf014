package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by Store. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS rbac_roles (
		seq        BIGSERIAL,
		role_id    TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rbac_grants (
		role_id    TEXT NOT NULL REFERENCES rbac_roles (role_id) ON DELETE CASCADE,
		resource   TEXT NOT NULL,
		action     TEXT NOT NULL CHECK (action IN ('view', 'create', 'edit', 'delete')),
		allowed    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (role_id, resource, action)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		actor       TEXT NOT NULL DEFAULT '',
		action      TEXT NOT NULL,
		entity      TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		meta        JSONB NOT NULL DEFAULT '{}'::jsonb,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: migrate step %d: %w", i, err)
		}
	}
	return nil
}
