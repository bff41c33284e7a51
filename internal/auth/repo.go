package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketslave/ticketslave/internal/platform/db"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser inserts an active user holding the named role.
	CreateUser(ctx context.Context, u NewUser, role string) (*User, error)
	// SetRecoveryToken records the id of the only reset token userID may use.
	SetRecoveryToken(ctx context.Context, userID int64, tokenID string) error
	// ResetPassword stores hash and clears the recovery token, provided
	// tokenID is still the recorded one. Otherwise it returns shared.ErrNotFound.
	ResetPassword(ctx context.Context, userID int64, tokenID, hash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT u.id, u.first_name, u.last_name, u.email, u.password_hash, u.status, r.name, u.created_at, u.updated_at
FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.email = $1`, email)
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Status, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user bound to the role named role.
func (r *PGRepository) CreateUser(ctx context.Context, nu NewUser, role string) (*User, error) {
	u := User{FirstName: nu.FirstName, LastName: nu.LastName, Email: nu.Email, PasswordHash: nu.PasswordHash, Status: "active", Role: role}
	err := r.pool.QueryRow(ctx, `INSERT INTO users (first_name, last_name, email, password_hash, status, role_id)
SELECT $1, $2, $3, $4, 'active', r.id FROM roles r WHERE r.name = $5
RETURNING id, created_at, updated_at`, nu.FirstName, nu.LastName, nu.Email, nu.PasswordHash, role).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case err == nil:
		return &u, nil
	case db.IsUniqueViolation(err):
		return nil, shared.ErrEmailTaken
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("auth: default role %q is not seeded", role)
	default:
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
}

// SetRecoveryToken replaces any outstanding recovery token of the user.
func (r *PGRepository) SetRecoveryToken(ctx context.Context, userID int64, tokenID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET recovery_token = $2, updated_at = NOW() WHERE id = $1`, userID, tokenID)
	if err != nil {
		return fmt.Errorf("auth: set recovery token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ResetPassword consumes the recovery token in the same statement that
// changes the hash.
func (r *PGRepository) ResetPassword(ctx context.Context, userID int64, tokenID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $3, recovery_token = NULL, updated_at = NOW()
WHERE id = $1 AND recovery_token = $2`, userID, tokenID, hash)
	if err != nil {
		return fmt.Errorf("auth: reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
