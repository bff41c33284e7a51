package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ticketslave/ticketslave/internal/shared"
)

// Authenticator places the principal asserted by a valid bearer token in the
// request context. Requests without a valid token proceed anonymously and
// are turned away by the RBAC gate where a route demands it.
type Authenticator struct {
	Tokens *TokenIssuer
	Logger *slog.Logger
}

// Middleware implements the chi middleware signature.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.Tokens.Parse(raw)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Debug("auth reject token", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
