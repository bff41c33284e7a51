package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/rbac"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/recover", h.handleRecover)
	r.Post("/reset", h.handleReset)
}

type meResponse struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	httpx.OK(w, http.StatusCreated, "account created", user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	session, err := h.service.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	httpx.OK(w, http.StatusOK, "login successful", session)
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	var in RecoverInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), in.Email); err != nil {
		h.fail(w, r, "recover password", err)
		return
	}
	httpx.OK(w, http.StatusOK, "if the account exists, a reset link has been sent", nil)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var in ResetInput
	if !httpx.Bind(w, r, h.validator, &in) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), in); err != nil {
		h.fail(w, r, "reset password", err)
		return
	}
	httpx.OK(w, http.StatusOK, "password changed", nil)
}

// Me returns the caller's role and permissions. It must run behind the RBAC gate.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := rbac.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return
	}
	httpx.OK(w, http.StatusOK, "", meResponse{
		ID:          id.UserID,
		Email:       id.Email,
		Role:        string(id.Role),
		Permissions: id.Permissions.Strings(),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
