package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vitrine-commerce/vitrine/internal/platform/db"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/rbac/backendtest"
	"github.com/vitrine-commerce/vitrine/internal/rbac/pgstore"
)

// The suite needs a disposable database; its tables are truncated between
// tests.
func TestStore(t *testing.T) {
	dsn := os.Getenv("VITRINE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("VITRINE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pgstore.Migrate(ctx, pool))

	suite.Run(t, &backendtest.Suite{NewBackend: func() rbac.Backend {
		truncate(t, pool)
		return pgstore.New(pool)
	}})
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE rbac_grants, rbac_roles RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}
