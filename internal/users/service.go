package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// ErrNotFound indicates that the user does not exist.
var ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, page shared.PageRequest) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	SetRole(ctx context.Context, userID, roleID int64) error
	SetStatus(ctx context.Context, userID int64, status Status) error
	// UpdateProfile applies the non-nil fields of in.
	UpdateProfile(ctx context.Context, userID int64, in ProfileInput) error
	DeleteUser(ctx context.Context, userID int64) error
}

// AccessInvalidator drops cached authorization state, so a changed role or
// status applies to the user's next request.
type AccessInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RoleFinder resolves role ids against the catalog.
type RoleFinder interface {
	FindRole(ctx context.Context, id int64) (rbac.Role, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	roles  RoleFinder
	access AccessInvalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleFinder, access AccessInvalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, access: access, audit: audit, logger: logger}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page shared.PageRequest) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.ListUsers(ctx, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetUserRole returns the role the user currently holds.
func (s *Service) GetUserRole(ctx context.Context, id int64) (rbac.Role, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	return s.roles.FindRole(ctx, u.RoleID)
}

// AssignRole replaces the user's role. Every user holds exactly one role, so
// assignment is a swap, never an addition.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) (User, error) {
	role, err := s.roles.FindRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return User{}, &rbac.CatalogIntegrityError{RoleID: roleID, Missing: "role"}
		}
		return User{}, err
	}
	before, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.SetRole(ctx, userID, role.ID); err != nil {
		return User{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditUserRoleAssigned, userID, map[string]any{"role": role.Name, "previous": before.RoleName})
	before.RoleID, before.RoleName = role.ID, role.Name
	return before, nil
}

// SetStatus activates or deactivates a user.
func (s *Service) SetStatus(ctx context.Context, userID int64, status Status) (User, error) {
	if status != StatusActive && status != StatusInactive {
		return User{}, fmt.Errorf("users: unknown status %q: %w", status, httpx.ErrValidation)
	}
	if err := s.repo.SetStatus(ctx, userID, status); err != nil {
		return User{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditUserStatusChanged, userID, map[string]any{"status": status})
	return s.repo.GetUser(ctx, userID)
}

// UpdateProfile changes name and email. Role and status have their own
// operations.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (User, error) {
	in = in.normalized()
	if in.empty() {
		return User{}, fmt.Errorf("users: nothing to update: %w", httpx.ErrValidation)
	}
	if err := s.repo.UpdateProfile(ctx, userID, in); err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditUserUpdated, userID, in.changes())
	return s.repo.GetUser(ctx, userID)
}

// DeleteUser removes the account. Its cached access is dropped with it.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	if userID == shared.ActorID(ctx) {
		return fmt.Errorf("users: cannot delete own account: %w", httpx.ErrConflict)
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditUserDeleted, userID, nil)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.access == nil {
		return
	}
	if err := s.access.Invalidate(ctx); err != nil {
		s.logger.Warn("users access invalidate", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "user",
		EntityID: shared.EntityID(id),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("users audit", slog.String("action", action), slog.Any("error", err))
	}
}
