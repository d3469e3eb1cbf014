package users

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	AssignRole(ctx context.Context, id int64, role rbac.Role) (User, error)
}

// RoleLookup confirms a role is registered.
type RoleLookup interface {
	GetRole(ctx context.Context, role rbac.Role) (rbac.RoleDefinition, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user administration. Existing sessions keep the role they
// were bound with until they expire or log out.
type Service struct {
	repo   RepositoryPort
	roles  RoleLookup
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance. audit and logger may be nil.
func NewService(repo RepositoryPort, roles RoleLookup, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p.PerPage, (p.Page-1)*p.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if users == nil {
		users = []User{}
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// AssignRole moves a user to a registered role.
func (s *Service) AssignRole(ctx context.Context, id int64, role rbac.Role) (User, error) {
	parsed, err := rbac.ParseRole(string(role))
	if err != nil {
		return User{}, err
	}
	if _, err := s.roles.GetRole(ctx, parsed); err != nil {
		return User{}, err
	}
	user, err := s.repo.AssignRole(ctx, id, parsed)
	if err != nil {
		return User{}, err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "user.role_assigned",
			Entity:   "user",
			EntityID: strconv.FormatInt(user.ID, 10),
			Meta:     map[string]any{"role": string(parsed)},
			At:       time.Now().UTC(),
		})
		if err != nil {
			s.logger.Error("user role audit", slog.Int64("user_id", user.ID), slog.String("role", string(parsed)), slog.Any("error", err))
		}
	}
	return user, nil
}
