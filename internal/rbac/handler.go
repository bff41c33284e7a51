package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// Handler exposes the permission catalog and role bindings over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountPermissionRoutes registers the catalog routes under /permissions.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRBACManage))
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Get("/{id}", h.getPermission)
		r.Patch("/{id}", h.updatePermission)
		r.Delete("/{id}", h.deletePermission)
	})
}

// MountRolePermissionRoutes registers binding routes under /roles.
func (h *Handler) MountRolePermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRBACManage))
		r.Get("/{id}/permissions", h.listRolePermissions)
		r.Post("/{id}/permissions", h.setRolePermissions)
		r.Put("/{id}/permissions/{permissionID}", h.assignPermission)
		r.Delete("/{id}/permissions/{permissionID}", h.revokePermission)
	})
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,dive,gt=0"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.GetAllPermissions(r.Context())
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", perms)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", perm)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "create permission", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "permission created", perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req permissionRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "update permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission updated", perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, r, "delete permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission deleted", nil)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.GetRolePermissions(r.Context(), roleID)
	if err != nil {
		h.fail(w, r, "list role permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", perms)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setPermissionsRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), roleID, req.PermissionIDs); err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	perms, err := h.service.GetRolePermissions(r.Context(), roleID)
	if err != nil {
		h.fail(w, r, "list role permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, "role permissions updated", perms)
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := bindingIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.AssignPermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, r, "assign permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission assigned", Binding{RoleID: roleID, PermissionID: permissionID})
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := bindingIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, r, "revoke permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "permission revoked", nil)
}

func bindingIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	permissionID, err := httpx.PathID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return roleID, permissionID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
