package roles

import (
	"fmt"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/rbac"
)

// Role represents a role for management.
type Role = rbac.Role

// ErrReferenceRole guards the built-in roles that tokens refer to by name.
var ErrReferenceRole = fmt.Errorf("roles: built-in role cannot be renamed or deleted: %w", httpx.ErrConflict)

// ErrNotFound indicates that the role does not exist.
var ErrNotFound = rbac.ErrNotFound

// RoleInput is the body of create and update requests.
type RoleInput struct {
	Name        string `json:"name" validate:"required,min=3,max=20"`
	Description string `json:"description" validate:"max=255"`
}

func isReferenceRole(name rbac.RoleName) bool {
	switch name {
	case rbac.RoleAdmin, rbac.RoleOrganizer, rbac.RoleCustomer:
		return true
	}
	return false
}
