package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// RoleLookup resolves registered roles.
type RoleLookup interface {
	GetRole(ctx context.Context, role rbac.Role) (rbac.RoleDefinition, error)
}

// Authorizer decides permissions for a role.
type Authorizer interface {
	Can(ctx context.Context, role rbac.Role, resource rbac.Resource, action rbac.Action) bool
	CanAny(ctx context.Context, role rbac.Role, resource rbac.Resource, actions ...rbac.Action) bool
}

// MatrixLoader materialises a role's full capability grid.
type MatrixLoader interface {
	MatrixForRole(ctx context.Context, role rbac.Role) (rbac.Matrix, error)
}

// Observer receives session lifecycle events such as "bound" or "expired".
type Observer interface {
	ObserveSession(event string, count int)
}

// Session lifecycle events reported to the Observer.
const (
	EventBound       = "bound"
	EventInvalidated = "invalidated"
	EventExpired     = "expired"
	EventSwept       = "swept"
)

// GuardConfig collects the Guard's collaborators.
type GuardConfig struct {
	Store      Store
	Roles      RoleLookup
	Authorizer Authorizer
	Matrices   MatrixLoader
	Observer   Observer
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Guard bridges authenticated sessions to authorization decisions. Missing
// and expired sessions are indistinguishable to callers: both deny.
type Guard struct {
	store    Store
	roles    RoleLookup
	authz    Authorizer
	matrices MatrixLoader
	observer Observer
	logger   *slog.Logger
	clock    func() time.Time
}

// NewGuard builds a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guard{
		store:    cfg.Store,
		roles:    cfg.Roles,
		authz:    cfg.Authorizer,
		matrices: cfg.Matrices,
		observer: cfg.Observer,
		logger:   logger,
		clock:    clock,
	}
}

// Bind records that sessionID acts as role until expiresAt. The role must be
// registered. An expiresAt already in the past yields an expired session.
func (g *Guard) Bind(ctx context.Context, sessionID, principal string, role rbac.Role, expiresAt time.Time) (Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, fmt.Errorf("%w: empty id", ErrInvalidSession)
	}
	if expiresAt.IsZero() {
		return Session{}, fmt.Errorf("%w: missing expiry", ErrInvalidSession)
	}
	if _, err := g.roles.GetRole(ctx, role); err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        sessionID,
		Principal: principal,
		Role:      role,
		CreatedAt: g.clock(),
		ExpiresAt: expiresAt.UTC(),
	}
	if err := g.store.Save(ctx, sess); err != nil {
		return Session{}, err
	}
	g.observe(EventBound)
	return sess, nil
}

// Lookup returns the active session for sessionID. Expired sessions are
// removed on the way.
func (g *Guard) Lookup(ctx context.Context, sessionID string) (Session, bool) {
	if sessionID == "" {
		return Session{}, false
	}
	sess, err := g.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Warn("session lookup", slog.Any("error", err))
		}
		return Session{}, false
	}
	if sess.Expired(g.clock()) {
		if err := g.store.Delete(ctx, sessionID); err != nil {
			g.logger.Warn("session expire", slog.Any("error", err))
		}
		g.observe(EventExpired)
		return Session{}, false
	}
	return sess, true
}

// CurrentRole returns the role bound to an active session.
func (g *Guard) CurrentRole(ctx context.Context, sessionID string) (rbac.Role, bool) {
	sess, ok := g.Lookup(ctx, sessionID)
	if !ok {
		return "", false
	}
	return sess.Role, true
}

// Authorize reports whether the session may perform action on resource.
func (g *Guard) Authorize(ctx context.Context, sessionID string, resource rbac.Resource, action rbac.Action) bool {
	role, ok := g.CurrentRole(ctx, sessionID)
	if !ok || g.authz == nil {
		return false
	}
	return g.authz.Can(ctx, role, resource, action)
}

// AuthorizeAny reports whether the session holds at least one of actions.
func (g *Guard) AuthorizeAny(ctx context.Context, sessionID string, resource rbac.Resource, actions ...rbac.Action) bool {
	role, ok := g.CurrentRole(ctx, sessionID)
	if !ok || g.authz == nil {
		return false
	}
	return g.authz.CanAny(ctx, role, resource, actions...)
}

// Capabilities returns the full grid of the session's role.
func (g *Guard) Capabilities(ctx context.Context, sessionID string) (rbac.Matrix, bool) {
	role, ok := g.CurrentRole(ctx, sessionID)
	if !ok || g.matrices == nil {
		return nil, false
	}
	m, err := g.matrices.MatrixForRole(ctx, role)
	if err != nil {
		g.logger.Warn("session capabilities", slog.String("role", string(role)), slog.Any("error", err))
		return nil, false
	}
	return m, true
}

// Invalidate ends the session immediately.
func (g *Guard) Invalidate(ctx context.Context, sessionID string) error {
	if err := g.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	g.observe(EventInvalidated)
	return nil
}

// Sweep removes every expired session and returns how many were dropped.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	n, err := g.store.DeleteExpired(ctx, g.clock())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.observeN(EventSwept, n)
	}
	return n, nil
}

func (g *Guard) observe(event string) {
	g.observeN(event, 1)
}

func (g *Guard) observeN(event string, n int) {
	if g.observer != nil {
		g.observer.ObserveSession(event, n)
	}
}
