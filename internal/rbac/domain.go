package rbac

import "time"

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64     `json:"id"`
	Name        RoleName  `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64          `json:"id"`
	Name        PermissionName `json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Binding ties a permission to a role.
type Binding struct {
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is a resolved caller: its role and the role's permission set.
type Identity struct {
	UserID      int64
	Email       string
	Role        RoleName
	Permissions PermissionSet
}

// UserAccess is the part of a user record that drives authorization.
type UserAccess struct {
	Role   RoleName `json:"role"`
	Active bool     `json:"active"`
}
