package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/jobs"
)

func newRolesCLI(t *testing.T) *RolesCLI {
	t.Helper()
	backend := rbac.NewMemoryBackend()
	resources, err := rbac.NewResourceRegistry("orders", "coupons")
	require.NoError(t, err)
	registry := rbac.NewRegistry(backend, resources, nil)
	_, err = registry.RegisterRole(context.Background(), rbac.RoleFinance, "Finance", []rbac.Grant{
		{Resource: "orders", Action: rbac.ActionView, Allowed: true},
	})
	require.NoError(t, err)
	return NewRolesCLI(registry, rbac.NewMatrixStore(backend, resources, nil), resources)
}

func TestRolesCommandListsRoles(t *testing.T) {
	cli := newRolesCLI(t)
	var stdout, stderr bytes.Buffer

	code := cli.Command(context.Background(), RolesOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "ROLE")
	require.Contains(t, stdout.String(), "finance")
}

func TestRolesCommandPrintsMatrix(t *testing.T) {
	cli := newRolesCLI(t)
	var stdout, stderr bytes.Buffer

	code := cli.Command(context.Background(), RolesOptions{Role: "finance", Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code, stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"orders", "x", "-", "-", "-"}, strings.Fields(lines[1]))
	require.Equal(t, []string{"coupons", "-", "-", "-", "-"}, strings.Fields(lines[2]))
}

func TestRolesCommandJSON(t *testing.T) {
	cli := newRolesCLI(t)
	var stdout, stderr bytes.Buffer

	code := cli.Command(context.Background(), RolesOptions{Role: "finance", JSONOutput: true, Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code)
	var m map[string]map[string]bool
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &m))
	require.True(t, m["orders"]["view"])
	require.False(t, m["coupons"]["delete"])
}

func TestRolesCommandErrors(t *testing.T) {
	cli := newRolesCLI(t)
	var stdout, stderr bytes.Buffer

	require.Equal(t, 2, cli.Command(context.Background(), RolesOptions{Role: "Bad Role", Stdout: &stdout, Stderr: &stderr}))
	require.Equal(t, 1, cli.Command(context.Background(), RolesOptions{Role: "ghost", Stdout: &stdout, Stderr: &stderr}))
	require.Contains(t, stderr.String(), "unknown role")
}

func TestResolveJob(t *testing.T) {
	job, err := ResolveJob("sweep")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSessionSweep, job)

	job, err = ResolveJob(jobs.TaskPresetSync)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskPresetSync, job)

	_, err = ResolveJob("nope")
	require.Error(t, err)
}
