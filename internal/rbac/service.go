package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ticketslave/ticketslave/internal/shared"
)

// Service orchestrates RBAC operations over a Store.
type Service struct {
	store   Store
	cache   *PermissionCache
	audit   shared.AuditRecorder
	logger  *slog.Logger
	metrics *Metrics
	loads   singleflight.Group
}

// ServiceOptions carries the optional collaborators of Service.
type ServiceOptions struct {
	Cache   *PermissionCache
	Audit   shared.AuditRecorder
	Logger  *slog.Logger
	Metrics *Metrics
}

// NewService constructs a Service. Without a cache every permission lookup
// reads the store.
func NewService(store Store, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: opts.Cache, audit: opts.Audit, logger: logger, metrics: opts.Metrics}
}

// GetAllPermissions returns the catalog ordered by id.
func (s *Service) GetAllPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// GetPermission returns a single catalog entry.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.store.FindPermission(ctx, id)
}

// CreatePermission adds a catalog entry.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	parsed, err := ParsePermissionName(name)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.store.CreatePermission(ctx, parsed, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, shared.AuditPermissionCreated, "permission", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// UpdatePermission changes a catalog entry. Names are frozen once bound.
func (s *Service) UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error) {
	parsed, err := ParsePermissionName(name)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.store.UpdatePermission(ctx, id, parsed, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, shared.AuditPermissionUpdated, "permission", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// DeletePermission removes an unbound catalog entry.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.store.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.AuditPermissionDeleted, "permission", id, nil)
	return nil
}

// GetRolePermissions lists the permissions bound to a role.
func (s *Service) GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.store.RolePermissions(ctx, roleID)
}

// AssignPermission binds a permission to a role. Repeating it is a no-op.
func (s *Service) AssignPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.InsertRolePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditPermissionGranted, "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// RevokePermission unbinds a permission. Revoking an absent binding is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.DeleteRolePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditPermissionRevoked, "role", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// SetRolePermissions replaces the role's whole bundle.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	ids := dedupeIDs(permissionIDs)
	if err := s.store.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, shared.AuditRolePermissionSet, "role", roleID, map[string]any{"permission_ids": ids})
	return nil
}

// RolePermissionSet returns the permission set of the named role, served from
// the cache when possible. Concurrent misses for one role share a single load.
func (s *Service) RolePermissionSet(ctx context.Context, role RoleName) (PermissionSet, error) {
	key := string(role)
	if s.cache != nil {
		if set, _, ok := s.cache.Get(ctx, role); ok {
			return set, nil
		}
		key = s.cache.flightKey(key)
	}
	v, err, _ := s.loads.Do(key, func() (any, error) {
		var stamp Stamp
		if s.cache != nil {
			stamp = s.cache.Stamp(ctx)
		}
		start := time.Now()
		names, err := s.store.RolePermissionNames(ctx, role)
		s.metrics.observeLoad(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		set := NewPermissionSet(names...)
		if s.cache != nil {
			s.cache.Put(ctx, role, stamp, set)
		}
		return set, nil
	})
	if err != nil {
		return nil, &ResolutionError{Err: fmt.Errorf("load %s: %w", role, err)}
	}
	return v.(PermissionSet), nil
}

// UserAccess returns the role and status userID currently holds, served from
// the cache when possible.
func (s *Service) UserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	key := "user:" + strconv.FormatInt(userID, 10)
	if s.cache != nil {
		if access, _, ok := s.cache.GetUser(ctx, userID); ok {
			return access, nil
		}
		key = s.cache.flightKey(key)
	}
	v, err, _ := s.loads.Do(key, func() (any, error) {
		var stamp Stamp
		if s.cache != nil {
			stamp = s.cache.Stamp(ctx)
		}
		access, err := s.store.UserAccess(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.PutUser(ctx, userID, stamp, access)
		}
		return access, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return UserAccess{}, err
		}
		return UserAccess{}, &ResolutionError{Err: fmt.Errorf("load user %d: %w", userID, err)}
	}
	return v.(UserAccess), nil
}

// Invalidate drops every cached permission set and user access record.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx)
}

// Warm loads every role's permission set into the cache and returns how many
// roles were loaded.
func (s *Service) Warm(ctx context.Context) (int, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return 0, fmt.Errorf("rbac: warm: %w", err)
	}
	for _, role := range roles {
		if _, err := s.RolePermissionSet(ctx, role.Name); err != nil {
			return 0, fmt.Errorf("rbac: warm %s: %w", role.Name, err)
		}
	}
	return len(roles), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("rbac cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: shared.EntityID(id),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("rbac audit", slog.String("action", action), slog.Any("error", err))
	}
}

func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
