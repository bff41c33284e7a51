package rbac

import (
	"context"
	"fmt"

	"github.com/ticketslave/ticketslave/internal/shared"
)

// SeedPermission is a catalog entry applied by Seed.
type SeedPermission struct {
	Name        PermissionName
	Description string
}

// SeedRole is a role and its permission bundle applied by Seed.
type SeedRole struct {
	Name        RoleName
	Description string
	Permissions []PermissionName
}

// SeedData is a complete reference catalog.
type SeedData struct {
	Permissions []SeedPermission
	Roles       []SeedRole
}

var seedDescriptions = map[string]string{
	shared.PermUsersRead:        "Read the user list",
	shared.PermUsersUpdateAny:   "Update any user",
	shared.PermUsersAssignRole:  "Assign a role to a user",
	shared.PermRBACManage:       "Manage roles and permissions",
	shared.PermEventsCreate:     "Create new events",
	shared.PermEventsReadOwn:    "Read own events",
	shared.PermEventsUpdateOwn:  "Update own events",
	shared.PermEventsDeleteOwn:  "Delete own events",
	shared.PermEventsPublishOwn: "Publish own events",
	shared.PermCartManageOwn:    "Manage own shopping cart",
	shared.PermOrdersCreateOwn:  "Create own orders",
	shared.PermOrdersReadOwn:    "Read own order history",
	shared.PermTicketsReadOwn:   "Read own tickets",
	shared.PermTicketsValidate:  "Validate tickets at the door",
}

// ReferenceSeed returns the platform's reference roles and permissions.
func ReferenceSeed() SeedData {
	scopes := shared.AllScopes()
	perms := make([]SeedPermission, 0, len(scopes))
	all := make([]PermissionName, 0, len(scopes))
	for _, scope := range scopes {
		perms = append(perms, SeedPermission{Name: PermissionName(scope), Description: seedDescriptions[scope]})
		all = append(all, PermissionName(scope))
	}
	return SeedData{
		Permissions: perms,
		Roles: []SeedRole{
			{Name: RoleAdmin, Description: "Full system access", Permissions: all},
			{Name: RoleOrganizer, Description: "Creates and manages events", Permissions: []PermissionName{
				shared.PermEventsCreate,
				shared.PermEventsReadOwn,
				shared.PermEventsUpdateOwn,
				shared.PermEventsDeleteOwn,
				shared.PermEventsPublishOwn,
				shared.PermTicketsValidate,
			}},
			{Name: RoleCustomer, Description: "Buys tickets and browses events", Permissions: []PermissionName{
				shared.PermCartManageOwn,
				shared.PermOrdersCreateOwn,
				shared.PermOrdersReadOwn,
				shared.PermTicketsReadOwn,
			}},
		},
	}
}

// Seed applies ReferenceSeed to store.
func Seed(ctx context.Context, store Store) error {
	return Apply(ctx, store, ReferenceSeed())
}

// Apply upserts data into store. Role bundles are replaced wholesale, so
// running it twice leaves the same state.
func Apply(ctx context.Context, store Store, data SeedData) error {
	ids := make(map[PermissionName]int64, len(data.Permissions))
	for _, sp := range data.Permissions {
		name, err := ParsePermissionName(string(sp.Name))
		if err != nil {
			return err
		}
		p, err := store.UpsertPermission(ctx, name, sp.Description)
		if err != nil {
			return fmt.Errorf("rbac: seed permission %s: %w", name, err)
		}
		ids[p.Name] = p.ID
	}
	for _, sr := range data.Roles {
		name, err := ParseRoleName(string(sr.Name))
		if err != nil {
			return err
		}
		role, err := store.UpsertRole(ctx, name, sr.Description)
		if err != nil {
			return fmt.Errorf("rbac: seed role %s: %w", name, err)
		}
		bundle := make([]int64, 0, len(sr.Permissions))
		for _, pn := range sr.Permissions {
			id, ok := ids[pn]
			if !ok {
				return fmt.Errorf("rbac: seed role %s: permission %s not in catalog", name, pn)
			}
			bundle = append(bundle, id)
		}
		if err := store.ReplaceRolePermissions(ctx, role.ID, bundle); err != nil {
			return fmt.Errorf("rbac: seed role %s bindings: %w", name, err)
		}
	}
	return nil
}
