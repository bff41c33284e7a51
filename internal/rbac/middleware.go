package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

type identityContextKey struct{}

// ContextWithIdentity stores a resolved identity in ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity resolved by the gate, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// Require admits requests whose caller satisfies req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := m.Gate.Check(r.Context(), req)
			if decision.Allowed() {
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), decision.Identity)))
				return
			}
			m.deny(w, r, decision)
		})
	}
}

// Authenticated admits any caller with a resolvable identity.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.Require(Requirement{})
}

// RequireAll ensures the caller holds every listed permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.Require(MustRequirement(RequirementSpec{Permissions: perms}))
}

// RequireAny ensures the caller holds at least one listed permission.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.Require(MustRequirement(RequirementSpec{AnyPermissions: perms}))
}

// RequireRoles ensures the caller's role is one of roles.
func (m Middleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return m.Require(MustRequirement(RequirementSpec{Roles: roles}))
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, d Decision) {
	err := d.Err()
	var fields []httpx.ErrorField
	var fe httpx.FieldErrorer
	if errors.As(err, &fe) {
		fields = fe.FieldErrors()
	}
	switch d.State {
	case StateUnauthenticated:
		httpx.Fail(w, http.StatusUnauthorized, err.Error())
	case StateInsufficientRole, StateInsufficientPermission:
		m.log().Info("rbac denied",
			slog.String("path", r.URL.Path),
			slog.String("state", d.State.String()),
			slog.Any("error", err))
		httpx.Fail(w, http.StatusForbidden, err.Error(), fields...)
	default:
		m.log().Error("rbac resolve identity",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Fail(w, http.StatusServiceUnavailable, "permissions could not be resolved")
	}
}

func (m Middleware) log() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
