package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersRead))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Get("/{id}/role", h.getUserRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersAssignRole))
		r.Post("/{id}/role", h.assignRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersUpdateAny))
		r.Patch("/{id}/status", h.setStatus)
		r.Patch("/{id}", h.updateProfile)
		r.Delete("/{id}", h.deleteUser)
	})
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, page, err := h.service.ListUsers(r.Context(), shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", listResponse{Users: users, Pagination: page})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", user)
}

func (h *Handler) getUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetUserRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user role", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", role)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in AssignRoleInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	user, err := h.service.AssignRole(r.Context(), id, in.RoleID)
	if err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	httpx.OK(w, http.StatusOK, "role assigned", user)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in StatusInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	user, err := h.service.SetStatus(r.Context(), id, in.Status)
	if err != nil {
		h.fail(w, r, "set user status", err)
		return
	}
	httpx.OK(w, http.StatusOK, "status updated", user)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ProfileInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "update user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "updated", user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, "delete user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "user deleted", map[string]int64{"id": id})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
