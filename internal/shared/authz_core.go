package shared

// User and RBAC administration permissions.
const (
	PermUsersRead       = "users:read"
	PermUsersUpdateAny  = "users:update:any"
	PermUsersAssignRole = "users:assign-role"

	PermRBACManage = "rbac:manage"
)

// CoreScopes lists all permissions related to user and RBAC administration.
func CoreScopes() []string {
	return []string{
		PermUsersRead,
		PermUsersUpdateAny,
		PermUsersAssignRole,
		PermRBACManage,
	}
}
