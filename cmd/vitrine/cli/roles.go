package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// RoleLister lists registered roles.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]rbac.RoleDefinition, error)
}

// MatrixLoader materialises a role's grid.
type MatrixLoader interface {
	MatrixForRole(ctx context.Context, role rbac.Role) (rbac.Matrix, error)
}

// RolesCLI prints registered roles and their capability grids.
type RolesCLI struct {
	registry  RoleLister
	matrices  MatrixLoader
	resources *rbac.ResourceRegistry
}

// NewRolesCLI constructs the helper. Rows are printed in the order of
// resources.
func NewRolesCLI(registry RoleLister, matrices MatrixLoader, resources *rbac.ResourceRegistry) *RolesCLI {
	if resources == nil {
		resources = rbac.DefaultResources()
	}
	return &RolesCLI{registry: registry, matrices: matrices, resources: resources}
}

// RolesOptions defines the flags of the roles command.
type RolesOptions struct {
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// Command lists roles, or prints one role's matrix when opts.Role is set.
// It returns the process exit code.
func (c *RolesCLI) Command(ctx context.Context, opts RolesOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Role) == "" {
		roles, err := c.registry.ListRoles(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "roles: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			return encode(opts, roles)
		}
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ROLE\tLABEL\tCREATED")
		for _, r := range roles {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Role, r.Label, r.CreatedAt.Format("2006-01-02"))
		}
		_ = tw.Flush()
		return 0
	}

	role, err := rbac.ParseRole(opts.Role)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "roles: %v\n", err)
		return 2
	}
	m, err := c.matrices.MatrixForRole(ctx, role)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "roles: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		return encode(opts, m)
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	header := []string{"RESOURCE"}
	for _, act := range rbac.Actions() {
		header = append(header, strings.ToUpper(string(act)))
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, res := range c.resources.List() {
		cells := []string{string(res)}
		for _, act := range rbac.Actions() {
			mark := "-"
			if m.Allowed(res, act) {
				mark = "x"
			}
			cells = append(cells, mark)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	return 0
}

func encode(opts RolesOptions, v any) int {
	if err := json.NewEncoder(opts.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "roles: encode json: %v\n", err)
		return 1
	}
	return 0
}
