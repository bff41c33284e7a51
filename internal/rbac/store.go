package rbac

import "context"

// Store is the persistence surface of the RBAC catalog.
type Store interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	FindPermission(ctx context.Context, id int64) (Permission, error)
	CreatePermission(ctx context.Context, name PermissionName, description string) (Permission, error)
	// UpdatePermission returns ErrPermissionInUse when renaming a bound permission.
	UpdatePermission(ctx context.Context, id int64, name PermissionName, description string) (Permission, error)
	// DeletePermission returns ErrPermissionInUse while any role holds the permission.
	DeletePermission(ctx context.Context, id int64) error
	UpsertPermission(ctx context.Context, name PermissionName, description string) (Permission, error)

	ListRoles(ctx context.Context) ([]Role, error)
	FindRole(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, name RoleName) (Role, error)
	UpsertRole(ctx context.Context, name RoleName, description string) (Role, error)

	// RolePermissions lists the permissions bound to roleID ordered by id.
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	// RolePermissionNames lists the names bound to the named role. An unknown
	// role yields an empty slice.
	RolePermissionNames(ctx context.Context, role RoleName) ([]PermissionName, error)
	// InsertRolePermission is idempotent and returns *CatalogIntegrityError
	// when either side does not exist.
	InsertRolePermission(ctx context.Context, roleID, permissionID int64) error
	// DeleteRolePermission is a no-op when the binding is absent.
	DeleteRolePermission(ctx context.Context, roleID, permissionID int64) error
	// ReplaceRolePermissions atomically swaps the role's whole bundle.
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	// UserAccess returns ErrUnknownUser when userID has no record.
	UserAccess(ctx context.Context, userID int64) (UserAccess, error)
}
