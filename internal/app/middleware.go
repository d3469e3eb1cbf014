package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/vitrine-commerce/vitrine/internal/auth"
	"github.com/vitrine-commerce/vitrine/internal/observability"
	"github.com/vitrine-commerce/vitrine/internal/platform/httpx"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// SessionResolver finds the active session for an id.
type SessionResolver interface {
	Lookup(ctx context.Context, sessionID string) (session.Session, bool)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    SessionResolver
	CSRFManager *shared.CSRFManager
	Metrics     *observability.Metrics
}

type credentialSourceKey struct{}

const (
	sourceBearer = "bearer"
	sourceCookie = "cookie"
)

// sessionID reads the caller's session id from the Authorization header,
// falling back to the session cookie.
func sessionID(r *http.Request) (id, source string) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), sourceBearer
		}
	}
	if c, err := r.Cookie(auth.SessionCookie); err == nil && c.Value != "" {
		return c.Value, sourceCookie
	}
	return "", ""
}

// SessionMiddleware stores the session id and, for active sessions, the
// principal as actor in the request context. Authorization happens later.
func SessionMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, source := sessionID(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := shared.ContextWithSessionID(r.Context(), id)
			ctx = context.WithValue(ctx, credentialSourceKey{}, source)
			if resolver != nil {
				if sess, ok := resolver.Lookup(ctx, id); ok {
					ctx = shared.ContextWithActor(ctx, sess.Principal)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFMiddleware requires a token on unsafe requests authenticated by the
// session cookie. Bearer credentials are never sent by browsers on their own
// and are exempt. Login is exempt because it issues the token.
func CSRFMiddleware(csrf *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			source, _ := r.Context().Value(credentialSourceKey{}).(string)
			if csrf == nil || source != sourceCookie || r.URL.Path == "/auth/login" {
				next.ServeHTTP(w, r)
				return
			}
			id := shared.SessionIDFromContext(r.Context())
			if err := csrf.VerifyToken(id, r.Header.Get(shared.CSRFHeader)); err != nil {
				if logger != nil {
					logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "csrf token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStack installs the Vitrine middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.AppRateLimit > 0 {
			limit = cfg.Config.AppRateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Problem(w, http.StatusBadRequest, "Bad Request", "")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		SessionMiddleware(cfg.Sessions),
		CSRFMiddleware(cfg.CSRFManager, logger),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}
