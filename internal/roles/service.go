package roles

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name rbac.RoleName, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name rbac.RoleName, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// Invalidator drops cached permission sets after role changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service handles role business logic.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole adds a role with no permissions.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	name, err := rbac.ParseRoleName(in.Name)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(in.Description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, shared.AuditRoleCreated, role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes a role. Built-in roles keep their names.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	name, err := rbac.ParseRoleName(in.Name)
	if err != nil {
		return Role{}, err
	}
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if isReferenceRole(current.Name) && current.Name != name {
		return Role{}, ErrReferenceRole
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(in.Description))
	if err != nil {
		return Role{}, err
	}
	if current.Name != role.Name {
		s.invalidate(ctx)
	}
	s.record(ctx, shared.AuditRoleUpdated, role.ID, map[string]any{"name": role.Name, "previous": current.Name})
	return role, nil
}

// DeleteRole removes a role that no user holds.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if isReferenceRole(current.Name) {
		return ErrReferenceRole
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditRoleDeleted, id, map[string]any{"name": current.Name})
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("roles invalidate permission cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "role",
		EntityID: shared.EntityID(id),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("roles audit", slog.String("action", action), slog.Any("error", err))
	}
}
