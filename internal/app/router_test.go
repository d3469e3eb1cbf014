package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitrine-commerce/vitrine/internal/auth"
	"github.com/vitrine-commerce/vitrine/internal/observability"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
	_ "github.com/vitrine-commerce/vitrine/testing"
)

type userRepo map[string]*auth.User

func (u userRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if user, ok := u[email]; ok {
		return user, nil
	}
	return nil, shared.ErrNotFound
}

type console struct {
	handler http.Handler
	guard   *session.Guard
	matrix  *rbac.MatrixStore
	metrics *observability.Metrics
}

func newConsole(t *testing.T) console {
	t.Helper()
	ctx := context.Background()
	backend := rbac.NewMemoryBackend()
	broker := rbac.NewBroker()
	registry := rbac.NewRegistry(backend, nil, broker)
	matrices := rbac.NewMatrixStore(backend, nil, broker)
	cat, err := rbac.DefaultCatalogue()
	require.NoError(t, err)
	_, err = registry.LoadPresets(ctx, cat)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	evaluator := rbac.NewEvaluator(matrices, metrics, nil)
	guard := session.NewGuard(session.GuardConfig{
		Store:      session.NewMemoryStore(),
		Roles:      registry,
		Authorizer: evaluator,
		Matrices:   matrices,
		Observer:   metrics,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	users := userRepo{
		"admin@vitrine.local":   {ID: 1, Email: "admin@vitrine.local", PasswordHash: string(hash), Role: rbac.RoleAdminMaster, IsActive: true},
		"finance@vitrine.local": {ID: 2, Email: "finance@vitrine.local", PasswordHash: string(hash), Role: rbac.RoleFinance, IsActive: true},
	}

	csrf := shared.NewCSRFManager("csrf")
	mw := rbac.Middleware{Guard: guard}
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, AppRateLimit: 1000}
	handler := NewRouter(RouterParams{
		Config:             cfg,
		Sessions:           guard,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(nil, auth.NewService(users, guard, time.Hour, nil), csrf, false),
		SessionHandler:     session.NewHandler(guard),
		PermissionsHandler: rbac.NewPermissionsHandler(nil, registry, matrices, mw),
		RBACMiddleware:     mw,
		Metrics:            metrics,
	})
	return console{handler: handler, guard: guard, matrix: matrices, metrics: metrics}
}

type loginResult struct {
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token"`
}

func (c console) login(t *testing.T, email string) loginResult {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"`+email+`","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out loginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func (c console) do(method, path, bearer, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	c := newConsole(t)
	rr := c.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestPermissionsRequireSession(t *testing.T) {
	c := newConsole(t)
	rr := c.do(http.MethodGet, "/permissions/roles", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = c.do(http.MethodGet, "/permissions/roles", "unknown-session", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestFinanceCannotEditPermissions(t *testing.T) {
	c := newConsole(t)
	sess := c.login(t, "finance@vitrine.local")

	rr := c.do(http.MethodPut, "/permissions/roles/finance/grants", sess.SessionID, `{"resource":"orders","action":"delete","allowed":true}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	allowed, err := c.matrix.GetGrant(context.Background(), rbac.RoleFinance, "orders", rbac.ActionDelete)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAdminTogglesGrantAndFinanceSeesIt(t *testing.T) {
	c := newConsole(t)
	admin := c.login(t, "admin@vitrine.local")
	finance := c.login(t, "finance@vitrine.local")

	rr := c.do(http.MethodGet, "/me/capabilities", finance.SessionID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, capability(t, rr, "orders", "delete"))

	rr = c.do(http.MethodPut, "/permissions/roles/finance/grants", admin.SessionID, `{"resource":"orders","action":"delete","allowed":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = c.do(http.MethodGet, "/me/capabilities", finance.SessionID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, capability(t, rr, "orders", "delete"))
}

func TestRegisterRoleThroughAPI(t *testing.T) {
	c := newConsole(t)
	admin := c.login(t, "admin@vitrine.local")

	body := `{"role":"support","label":"Support","defaults":[{"resource":"orders","action":"view","allowed":true}]}`
	rr := c.do(http.MethodPost, "/permissions/roles", admin.SessionID, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = c.do(http.MethodPost, "/permissions/roles", admin.SessionID, body)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = c.do(http.MethodGet, "/permissions/roles/support/matrix", admin.SessionID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"resource":"orders"`)

	rr = c.do(http.MethodGet, "/permissions/roles/nobody/matrix", admin.SessionID, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCookieWritesNeedCSRFToken(t *testing.T) {
	c := newConsole(t)
	admin := c.login(t, "admin@vitrine.local")
	body := `{"resource":"orders","action":"delete","allowed":true}`

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPut, "/permissions/roles/finance/grants", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: admin.SessionID})
		if token != "" {
			req.Header.Set(shared.CSRFHeader, token)
		}
		rr := httptest.NewRecorder()
		c.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusForbidden, send(""))
	require.Equal(t, http.StatusForbidden, send("forged"))
	require.Equal(t, http.StatusOK, send(admin.CSRFToken))
}

func TestLogoutEndsAccess(t *testing.T) {
	c := newConsole(t)
	admin := c.login(t, "admin@vitrine.local")

	rr := c.do(http.MethodPost, "/auth/logout", admin.SessionID, "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = c.do(http.MethodGet, "/permissions/roles", admin.SessionID, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = c.do(http.MethodGet, "/me/capabilities", admin.SessionID, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsEndpointCountsDecisions(t *testing.T) {
	c := newConsole(t)
	finance := c.login(t, "finance@vitrine.local")
	c.do(http.MethodGet, "/permissions/roles", finance.SessionID, "")

	rr := c.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `vitrine_authz_decisions_total{action="view",outcome="deny",resource="core-roles"} 1`)
	require.Contains(t, rr.Body.String(), `vitrine_session_events_total{event="bound"} 1`)
}

func capability(t *testing.T, rr *httptest.ResponseRecorder, resource, action string) bool {
	t.Helper()
	var body struct {
		Capabilities map[string]map[string]bool `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	row, ok := body.Capabilities[resource]
	require.True(t, ok, "resource %s missing", resource)
	return row[action]
}
