package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitrine-commerce/vitrine/internal/auth"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
	_ "github.com/vitrine-commerce/vitrine/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type fixture struct {
	router http.Handler
	guard  *session.Guard
	csrf   *shared.CSRFManager
}

func newFixture(t *testing.T, user *auth.User) fixture {
	t.Helper()
	ctx := context.Background()
	registry := rbac.NewRegistry(rbac.NewMemoryBackend(), nil, nil)
	_, err := registry.RegisterRole(ctx, rbac.RoleFinance, "Finance", nil)
	require.NoError(t, err)

	guard := session.NewGuard(session.GuardConfig{
		Store: session.NewMemoryStore(),
		Roles: registry,
	})
	csrf := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(&stubRepo{user: user}, guard, time.Hour, nil), csrf, false)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(auth.SessionCookie); err == nil {
				r = r.WithContext(shared.ContextWithSessionID(r.Context(), c.Value))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return fixture{router: r, guard: guard, csrf: csrf}
}

func financeUser(t *testing.T, role rbac.Role) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), Role: role, IsActive: true}
}

func postLogin(f fixture, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestLoginBindsSessionToRole(t *testing.T) {
	f := newFixture(t, financeUser(t, rbac.RoleFinance))

	res := postLogin(f, `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		SessionID string    `json:"session_id"`
		Role      string    `json:"role"`
		ExpiresAt time.Time `json:"expires_at"`
		CSRFToken string    `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionID)
	require.Equal(t, "finance", body.Role)
	require.NoError(t, f.csrf.VerifyToken(body.SessionID, body.CSRFToken))

	role, ok := f.guard.CurrentRole(context.Background(), body.SessionID)
	require.True(t, ok)
	require.Equal(t, rbac.RoleFinance, role)

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.SessionCookie, cookies[0].Name)
	require.Equal(t, body.SessionID, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, financeUser(t, rbac.RoleFinance))

	res := postLogin(f, `{"email":"user@test.local","password":"wrongpass"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "invalid email or password")
	require.Empty(t, res.Result().Cookies())
}

func TestLoginInactiveUser(t *testing.T) {
	user := financeUser(t, rbac.RoleFinance)
	user.IsActive = false
	f := newFixture(t, user)

	res := postLogin(f, `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, nil)

	res := postLogin(f, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Email")
	require.Contains(t, res.Body.String(), "Password")

	res = postLogin(f, `{"email":`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginUnregisteredRole(t *testing.T) {
	f := newFixture(t, financeUser(t, rbac.Role("ghost")))

	res := postLogin(f, `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	f := newFixture(t, financeUser(t, rbac.RoleFinance))
	login := postLogin(f, `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, login.Code)
	cookie := login.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	_, ok := f.guard.CurrentRole(context.Background(), cookie.Value)
	require.False(t, ok)
	require.Equal(t, -1, res.Result().Cookies()[0].MaxAge)
}
