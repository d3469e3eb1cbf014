package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vitrine-commerce/vitrine/internal/platform/httpx"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// SessionAuthorizer answers authorization questions for a session id.
type SessionAuthorizer interface {
	CurrentRole(ctx context.Context, sessionID string) (Role, bool)
	Authorize(ctx context.Context, sessionID string, resource Resource, action Action) bool
	AuthorizeAny(ctx context.Context, sessionID string, resource Resource, actions ...Action) bool
}

// Middleware wires RBAC authorization helpers for HTTP handlers. Requests
// without an active session get 401, denied requests get 403.
type Middleware struct {
	Guard  SessionAuthorizer
	Logger *slog.Logger
}

// Require ensures the current session may perform action on resource.
func (m Middleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return m.RequireAny(resource, action)
}

// RequireAny ensures the current session holds at least one of actions.
func (m Middleware) RequireAny(resource Resource, actions ...Action) func(http.Handler) http.Handler {
	return m.guard(resource, actions, func(ctx context.Context, id string) bool {
		return m.Guard.AuthorizeAny(ctx, id, resource, actions...)
	})
}

// RequireAll ensures the current session holds every one of actions.
func (m Middleware) RequireAll(resource Resource, actions ...Action) func(http.Handler) http.Handler {
	return m.guard(resource, actions, func(ctx context.Context, id string) bool {
		if len(actions) == 0 {
			return false
		}
		for _, act := range actions {
			if !m.Guard.Authorize(ctx, id, resource, act) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) guard(resource Resource, actions []Action, allowed func(context.Context, string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := shared.SessionIDFromContext(ctx)
			if m.Guard == nil {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if _, ok := m.Guard.CurrentRole(ctx, id); !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "active session required")
				return
			}
			if !allowed(ctx, id) {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.String("resource", string(resource)),
						slog.Any("actions", actions),
						slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
