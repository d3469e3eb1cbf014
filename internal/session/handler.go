package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine-commerce/vitrine/internal/platform/httpx"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// Handler exposes the caller's own session to the console.
type Handler struct {
	guard *Guard
}

// NewHandler constructs a Handler.
func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

// MountRoutes registers the /me routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/capabilities", h.capabilities)
}

type capabilitiesResponse struct {
	Role         rbac.Role   `json:"role"`
	ExpiresAt    time.Time   `json:"expires_at"`
	Capabilities rbac.Matrix `json:"capabilities"`
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	id := shared.SessionIDFromContext(r.Context())
	sess, ok := h.guard.Lookup(r.Context(), id)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "active session required")
		return
	}
	m, ok := h.guard.Capabilities(r.Context(), id)
	if !ok {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "capabilities unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, capabilitiesResponse{
		Role:         sess.Role,
		ExpiresAt:    sess.ExpiresAt,
		Capabilities: m,
	})
}
