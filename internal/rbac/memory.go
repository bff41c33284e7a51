package rbac

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and isolated fixtures.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextRole int64
	nextPerm int64
	roles    map[int64]Role
	perms    map[int64]Permission
	bindings map[int64]map[int64]time.Time
	users    map[int64]UserAccess
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		roles:    make(map[int64]Role),
		perms:    make(map[int64]Permission),
		bindings: make(map[int64]map[int64]time.Time),
		users:    make(map[int64]UserAccess),
	}
}

func (m *MemoryStore) ListPermissions(_ context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sortPermissions(out)
	return out, nil
}

func (m *MemoryStore) FindPermission(_ context.Context, id int64) (Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) CreatePermission(_ context.Context, name PermissionName, description string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissionByName(name); ok {
		return Permission{}, ErrDuplicate
	}
	m.nextPerm++
	p := Permission{ID: m.nextPerm, Name: name, Description: description, CreatedAt: m.now()}
	m.perms[p.ID] = p
	return p, nil
}

func (m *MemoryStore) UpdatePermission(_ context.Context, id int64, name PermissionName, description string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, ErrNotFound
	}
	if p.Name != name {
		if m.permissionBound(id) {
			return Permission{}, ErrPermissionInUse
		}
		if other, ok := m.permissionByName(name); ok && other.ID != id {
			return Permission{}, ErrDuplicate
		}
	}
	p.Name = name
	p.Description = description
	m.perms[id] = p
	return p, nil
}

func (m *MemoryStore) DeletePermission(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[id]; !ok {
		return ErrNotFound
	}
	if m.permissionBound(id) {
		return ErrPermissionInUse
	}
	delete(m.perms, id)
	return nil
}

func (m *MemoryStore) UpsertPermission(_ context.Context, name PermissionName, description string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.permissionByName(name); ok {
		p.Description = description
		m.perms[p.ID] = p
		return p, nil
	}
	m.nextPerm++
	p := Permission{ID: m.nextPerm, Name: name, Description: description, CreatedAt: m.now()}
	m.perms[p.ID] = p
	return p, nil
}

func (m *MemoryStore) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Role) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryStore) FindRole(_ context.Context, id int64) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) FindRoleByName(_ context.Context, name RoleName) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roleByName(name)
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) UpsertRole(_ context.Context, name RoleName, description string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if r, ok := m.roleByName(name); ok {
		r.Description = description
		r.UpdatedAt = now
		m.roles[r.ID] = r
		return r, nil
	}
	m.nextRole++
	r := Role{ID: m.nextRole, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	m.roles[r.ID] = r
	return r, nil
}

func (m *MemoryStore) RolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roles[roleID]; !ok {
		return nil, ErrNotFound
	}
	return m.boundPermissions(roleID), nil
}

func (m *MemoryStore) RolePermissionNames(_ context.Context, name RoleName) ([]PermissionName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roleByName(name)
	if !ok {
		return []PermissionName{}, nil
	}
	perms := m.boundPermissions(r.ID)
	out := make([]PermissionName, len(perms))
	for i, p := range perms {
		out[i] = p.Name
	}
	return out, nil
}

func (m *MemoryStore) InsertRolePermission(_ context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRefs(roleID, []int64{permissionID}); err != nil {
		return err
	}
	m.bind(roleID, permissionID)
	return nil
}

func (m *MemoryStore) DeleteRolePermission(_ context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings[roleID], permissionID)
	return nil
}

func (m *MemoryStore) ReplaceRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRefs(roleID, permissionIDs); err != nil {
		return err
	}
	delete(m.bindings, roleID)
	for _, id := range permissionIDs {
		m.bind(roleID, id)
	}
	return nil
}

func (m *MemoryStore) UserAccess(_ context.Context, userID int64) (UserAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return UserAccess{}, ErrUnknownUser
	}
	return u, nil
}

// SetUser records the role and status UserAccess reports for userID.
func (m *MemoryStore) SetUser(userID int64, role RoleName, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = UserAccess{Role: role, Active: active}
}

// RemoveUser forgets userID.
func (m *MemoryStore) RemoveUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
}

// Bindings returns the number of bindings held for roleID.
func (m *MemoryStore) Bindings(roleID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings[roleID])
}

func (m *MemoryStore) checkRefs(roleID int64, permissionIDs []int64) error {
	if _, ok := m.roles[roleID]; !ok {
		return &CatalogIntegrityError{RoleID: roleID, Missing: "role"}
	}
	for _, id := range permissionIDs {
		if _, ok := m.perms[id]; !ok {
			return &CatalogIntegrityError{RoleID: roleID, PermissionID: id, Missing: "permission"}
		}
	}
	return nil
}

func (m *MemoryStore) bind(roleID, permissionID int64) {
	set, ok := m.bindings[roleID]
	if !ok {
		set = make(map[int64]time.Time)
		m.bindings[roleID] = set
	}
	if _, exists := set[permissionID]; !exists {
		set[permissionID] = m.now()
	}
}

func (m *MemoryStore) boundPermissions(roleID int64) []Permission {
	out := make([]Permission, 0, len(m.bindings[roleID]))
	for id := range m.bindings[roleID] {
		out = append(out, m.perms[id])
	}
	sortPermissions(out)
	return out
}

func (m *MemoryStore) permissionBound(id int64) bool {
	for _, set := range m.bindings {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func (m *MemoryStore) permissionByName(name PermissionName) (Permission, bool) {
	for _, p := range m.perms {
		if p.Name == name {
			return p, true
		}
	}
	return Permission{}, false
}

func (m *MemoryStore) roleByName(name RoleName) (Role, bool) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

func sortPermissions(perms []Permission) {
	slices.SortFunc(perms, func(a, b Permission) int { return cmp.Compare(a.ID, b.ID) })
}

var _ Store = (*MemoryStore)(nil)
