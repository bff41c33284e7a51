package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketslave/ticketslave/internal/platform/db"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, name, description, created_at`

const roleColumns = `id, name, description, created_at, updated_at`

func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return collectPermissions(rows)
}

func (r *Repository) FindPermission(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	return scanPermission(row)
}

func (r *Repository) CreatePermission(ctx context.Context, name PermissionName, description string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
RETURNING `+permissionColumns, string(name), description)
	p, err := scanPermission(row)
	if db.IsUniqueViolation(err) {
		return Permission{}, ErrDuplicate
	}
	return p, err
}

func (r *Repository) UpdatePermission(ctx context.Context, id int64, name PermissionName, description string) (Permission, error) {
	// A rename only goes through while nothing references the permission.
	row := r.pool.QueryRow(ctx, `UPDATE permissions SET name = $2, description = $3
WHERE id = $1
  AND (name = $2 OR NOT EXISTS (SELECT 1 FROM role_has_permissions WHERE permission_id = $1))
RETURNING `+permissionColumns, id, string(name), description)
	p, err := scanPermission(row)
	switch {
	case err == nil:
		return p, nil
	case db.IsUniqueViolation(err):
		return Permission{}, ErrDuplicate
	case errors.Is(err, ErrNotFound):
		if _, findErr := r.FindPermission(ctx, id); findErr != nil {
			return Permission{}, findErr
		}
		return Permission{}, ErrPermissionInUse
	default:
		return Permission{}, err
	}
}

func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrPermissionInUse
		}
		return fmt.Errorf("rbac: delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpsertPermission(ctx context.Context, name PermissionName, description string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING `+permissionColumns, string(name), description)
	return scanPermission(row)
}

func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return roles, nil
}

func (r *Repository) FindRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (r *Repository) FindRoleByName(ctx context.Context, name RoleName) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, string(name)))
}

func (r *Repository) UpsertRole(ctx context.Context, name RoleName, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
RETURNING `+roleColumns, string(name), description)
	return scanRole(row)
}

func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := r.FindRole(ctx, roleID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.description, p.created_at
FROM permissions p
JOIN role_has_permissions rp ON rp.permission_id = p.id
WHERE rp.role_id = $1
ORDER BY p.id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	return collectPermissions(rows)
}

func (r *Repository) RolePermissionNames(ctx context.Context, role RoleName) ([]PermissionName, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.name
FROM permissions p
JOIN role_has_permissions rp ON rp.permission_id = p.id
JOIN roles r ON r.id = rp.role_id
WHERE r.name = $1
ORDER BY p.id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("rbac: role permission names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rbac: role permission names: %w", err)
	}
	out := make([]PermissionName, len(names))
	for i, n := range names {
		out[i] = PermissionName(n)
	}
	return out, nil
}

func (r *Repository) InsertRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_has_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return integrityError(err, roleID, permissionID)
		}
		return fmt.Errorf("rbac: insert role permission: %w", err)
	}
	return nil
}

func (r *Repository) DeleteRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_has_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("rbac: delete role permission: %w", err)
	}
	return nil
}

func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		// Row lock on the role serialises concurrent replacements of one bundle.
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &CatalogIntegrityError{RoleID: roleID, Missing: "role"}
			}
			return fmt.Errorf("rbac: lock role: %w", err)
		}
		if len(permissionIDs) > 0 {
			found, err := lockPermissions(ctx, tx, permissionIDs)
			if err != nil {
				return err
			}
			if id, ok := firstMissing(permissionIDs, found); ok {
				return &CatalogIntegrityError{RoleID: roleID, PermissionID: id, Missing: "permission"}
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_has_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		if len(permissionIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `INSERT INTO role_has_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionIDs)
		if err != nil {
			return fmt.Errorf("rbac: insert role permissions: %w", err)
		}
		return nil
	})
}

// UserAccess returns the role and status currently held by userID.
func (r *Repository) UserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	var (
		role   string
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT r.name, u.status FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`, userID).
		Scan(&role, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAccess{}, ErrUnknownUser
		}
		return UserAccess{}, fmt.Errorf("rbac: user access: %w", err)
	}
	return UserAccess{Role: RoleName(role), Active: status == "active"}, nil
}

// lockPermissions share-locks the requested permission rows so they cannot be
// deleted before the bundle is written, and returns the ids that exist.
func lockPermissions(ctx context.Context, tx pgx.Tx, ids []int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1::bigint[]) FOR SHARE`, ids)
	if err != nil {
		return nil, fmt.Errorf("rbac: lock permissions: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("rbac: lock permissions: %w", err)
	}
	return found, nil
}

// firstMissing reports the first requested id absent from found.
func firstMissing(requested, found []int64) (int64, bool) {
	have := make(map[int64]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			return id, true
		}
	}
	return 0, false
}

func integrityError(err error, roleID, permissionID int64) *CatalogIntegrityError {
	switch db.ConstraintName(err) {
	case "role_has_permissions_role_id_fkey":
		return &CatalogIntegrityError{RoleID: roleID, PermissionID: permissionID, Missing: "role"}
	case "role_has_permissions_permission_id_fkey":
		return &CatalogIntegrityError{RoleID: roleID, PermissionID: permissionID, Missing: "permission"}
	default:
		return &CatalogIntegrityError{RoleID: roleID, PermissionID: permissionID}
	}
}

func scanPermission(row pgx.Row) (Permission, error) {
	var (
		p    Permission
		name string
	)
	if err := row.Scan(&p.ID, &name, &p.Description, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	p.Name = PermissionName(name)
	return p, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role Role
		name string
	)
	if err := row.Scan(&role.ID, &name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	role.Name = RoleName(name)
	return role, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

var _ Store = (*Repository)(nil)
