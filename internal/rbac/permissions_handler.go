package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vitrine-commerce/vitrine/internal/platform/httpx"
	"github.com/vitrine-commerce/vitrine/internal/shared"
)

// PermissionsHandler serves the permissions editor: role listing and
// registration, per-role matrices and single-cell toggles.
type PermissionsHandler struct {
	logger    *slog.Logger
	registry  *Registry
	matrices  *MatrixStore
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, registry *Registry, matrices *MatrixStore, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PermissionsHandler{
		logger:    logger,
		registry:  registry,
		matrices:  matrices,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	roles := Resource(shared.ResCoreRoles)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(roles, ActionView))
		r.Get("/resources", h.listResources)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{role}", h.getRole)
		r.Get("/roles/{role}/matrix", h.getMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(roles, ActionCreate))
		r.Post("/roles", h.registerRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(roles, ActionEdit))
		r.Put("/roles/{role}/grants", h.setGrant)
	})
}

type registerRoleRequest struct {
	Role     string               `json:"role" validate:"required,min=2,max=63"`
	Label    string               `json:"label" validate:"required,max=120"`
	Defaults []grantToggleRequest `json:"defaults" validate:"dive"`
}

type grantToggleRequest struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required,oneof=view create edit delete"`
	Allowed  *bool  `json:"allowed" validate:"required"`
}

type matrixResponse struct {
	Role    Role        `json:"role"`
	Label   string      `json:"label"`
	Actions []Action    `json:"actions"`
	Rows    []matrixRow `json:"rows"`
}

type matrixRow struct {
	Resource Resource        `json:"resource"`
	Grants   map[Action]bool `json:"grants"`
}

func (h *PermissionsHandler) listResources(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"resources": h.registry.Resources().List(),
		"actions":   Actions(),
	})
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.registry.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *PermissionsHandler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	def, err := h.registry.GetRole(r.Context(), role)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, def)
}

func (h *PermissionsHandler) registerRole(w http.ResponseWriter, r *http.Request) {
	var req registerRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if fields := h.validate(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(w, "register role", err)
		return
	}
	defaults := make([]Grant, 0, len(req.Defaults))
	for _, d := range req.Defaults {
		defaults = append(defaults, Grant{Role: role, Resource: Resource(d.Resource), Action: Action(d.Action), Allowed: *d.Allowed})
	}
	def, err := h.registry.RegisterRole(r.Context(), role, req.Label, defaults)
	if err != nil {
		h.respondError(w, "register role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, def)
}

func (h *PermissionsHandler) getMatrix(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.respondError(w, "get matrix", err)
		return
	}
	def, err := h.registry.GetRole(r.Context(), role)
	if err != nil {
		h.respondError(w, "get matrix", err)
		return
	}
	m, err := h.matrices.MatrixForRole(r.Context(), role)
	if err != nil {
		h.respondError(w, "get matrix", err)
		return
	}
	resp := matrixResponse{Role: role, Label: def.Label, Actions: Actions()}
	for _, res := range h.registry.Resources().List() {
		resp.Rows = append(resp.Rows, matrixRow{Resource: res, Grants: m[res]})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *PermissionsHandler) setGrant(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.respondError(w, "set grant", err)
		return
	}
	var req grantToggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if fields := h.validate(req); len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	resource, err := h.registry.Resources().Parse(req.Resource)
	if err != nil {
		h.respondError(w, "set grant", err)
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		h.respondError(w, "set grant", err)
		return
	}
	if err := h.matrices.SetGrant(r.Context(), role, resource, action, *req.Allowed); err != nil {
		h.respondError(w, "set grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, Grant{Role: role, Resource: resource, Action: action, Allowed: *req.Allowed})
}

func (h *PermissionsHandler) validate(v any) map[string]string {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return fields
	}
	fields["general"] = err.Error()
	return fields
}

func (h *PermissionsHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownRole):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrUnknownResource), errors.Is(err, ErrUnknownAction):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrStorageUnavailable):
		h.logger.Error("permissions "+op, slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "permission storage unavailable")
	default:
		h.logger.Error("permissions "+op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
