package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// SessionBinder opens and closes role-bound sessions.
type SessionBinder interface {
	Bind(ctx context.Context, sessionID, principal string, role rbac.Role, expiresAt time.Time) (session.Session, error)
	Invalidate(ctx context.Context, sessionID string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	guard  SessionBinder
	ttl    time.Duration
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs a new Service. Sessions last ttl from login.
func NewService(repo Repository, guard SessionBinder, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:   repo,
		guard:  guard,
		ttl:    ttl,
		logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("auth lookup", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and binds a fresh session to the user's role.
func (s *Service) Login(ctx context.Context, email, password string) (session.Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return session.Session{}, err
	}
	sess, err := s.guard.Bind(ctx, session.NewID(), user.Email, user.Role, s.clock().Add(s.ttl))
	if err != nil {
		return session.Session{}, err
	}
	s.logger.Info("login", slog.String("principal", user.Email), slog.String("role", string(user.Role)))
	return sess, nil
}

// Logout ends the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.guard.Invalidate(ctx, sessionID)
}
