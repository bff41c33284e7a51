package shared

import (
	"fmt"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrInactiveAccount is returned when an inactive user tries to log in.
	ErrInactiveAccount = fmt.Errorf("account inactive: %w", httpx.ErrForbidden)
	// ErrEmailTaken occurs on registration with an existing email.
	ErrEmailTaken = fmt.Errorf("email already registered: %w", httpx.ErrDuplicate)
)
