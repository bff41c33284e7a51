package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketslave/ticketslave/internal/shared"
)

// seedUsers registers the reference accounts: 1 admin, 2 organizer, 3 customer.
func seedUsers(store *MemoryStore) {
	store.SetUser(1, RoleAdmin, true)
	store.SetUser(2, RoleOrganizer, true)
	store.SetUser(3, RoleCustomer, true)
}

func seededService(t *testing.T) (*Service, *MemoryStore, *shared.MemoryAuditLog) {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), store))
	seedUsers(store)
	audit := &shared.MemoryAuditLog{}
	cache := NewPermissionCache(nil, CacheOptions{}, nil, nil)
	return NewService(store, ServiceOptions{Cache: cache, Audit: audit}), store, audit
}

func roleID(t *testing.T, store Store, name RoleName) int64 {
	t.Helper()
	role, err := store.FindRoleByName(context.Background(), name)
	require.NoError(t, err)
	return role.ID
}

func permissionID(t *testing.T, store Store, name PermissionName) int64 {
	t.Helper()
	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	for _, p := range perms {
		if p.Name == name {
			return p.ID
		}
	}
	t.Fatalf("permission %s not seeded", name)
	return 0
}

func TestReferenceSeedBundles(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()

	catalog, err := svc.GetAllPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 14)

	admin, err := svc.RolePermissionSet(ctx, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, len(catalog), admin.Len())

	organizer, err := svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"events:create", "events:read:own", "events:update:own",
		"events:delete:own", "events:publish:own", "tickets:validate",
	}, organizer.Strings())

	customer, err := svc.RolePermissionSet(ctx, RoleCustomer)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"cart:manage:own", "orders:create:own", "orders:read:own", "tickets:read:own",
	}, customer.Strings())

	// Seeding again must not duplicate anything.
	require.NoError(t, Seed(ctx, store))
	catalog, err = svc.GetAllPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, 14)
	assert.Equal(t, 6, store.Bindings(roleID(t, store, RoleOrganizer)))
}

func TestCustomerDeniedRBACManage(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 3, Email: "customer@test.com", Role: "customer"})
	gate := NewGate(NewClaimsSource(svc), 0, nil)

	d := gate.Check(ctx, MustRequirement(RequirementSpec{Permissions: []string{shared.PermRBACManage}}))
	require.Equal(t, StateInsufficientPermission, d.State)
	var permErr *InsufficientPermissionError
	require.ErrorAs(t, d.Err(), &permErr)
	assert.Equal(t, []PermissionName{"rbac:manage"}, permErr.Missing)
}

func TestOrganizerRoleGating(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 2, Email: "organizer@test.com", Role: "organizer"})
	gate := NewGate(NewClaimsSource(svc), 0, nil)

	allowed := gate.Check(ctx, MustRequirement(RequirementSpec{Roles: []string{"organizer"}}))
	assert.True(t, allowed.Allowed())

	denied := gate.Check(ctx, MustRequirement(RequirementSpec{Roles: []string{"admin"}}))
	require.Equal(t, StateInsufficientRole, denied.State)
	assert.Contains(t, denied.Err().Error(), "admin")
	assert.Contains(t, denied.Err().Error(), "organizer")
}

func TestRevokeFlipsOnlyThatPermission(t *testing.T) {
	svc, store, audit := seededService(t)
	ctx := context.Background()
	organizerID := roleID(t, store, RoleOrganizer)
	validateID := permissionID(t, store, "tickets:validate")

	before, err := svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	require.True(t, HasAllPermissions(before, []PermissionName{"tickets:validate"}))

	require.NoError(t, svc.RevokePermission(ctx, organizerID, validateID))

	after, err := svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	assert.False(t, HasAllPermissions(after, []PermissionName{"tickets:validate"}))
	assert.True(t, HasAllPermissions(after, []PermissionName{
		"events:create", "events:read:own", "events:update:own", "events:delete:own", "events:publish:own",
	}))
	assert.Equal(t, 5, after.Len())
	assert.Equal(t, []string{shared.AuditPermissionRevoked}, audit.Actions())
}

func TestAssignPermissionIsIdempotent(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()
	customerID := roleID(t, store, RoleCustomer)
	validateID := permissionID(t, store, "tickets:validate")

	require.NoError(t, svc.AssignPermission(ctx, customerID, validateID))
	once, err := svc.GetRolePermissions(ctx, customerID)
	require.NoError(t, err)

	require.NoError(t, svc.AssignPermission(ctx, customerID, validateID))
	twice, err := svc.GetRolePermissions(ctx, customerID)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Len(t, twice, 5)
}

func TestGetRolePermissionsOrderedWithoutDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	svc := NewService(store, ServiceOptions{})

	role, err := store.UpsertRole(ctx, "staff", "")
	require.NoError(t, err)
	var ids []int64
	for _, name := range []PermissionName{"a:one", "b:two", "c:three"} {
		p, err := store.CreatePermission(ctx, name, "")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	for _, id := range []int64{ids[2], ids[0], ids[2], ids[1], ids[0]} {
		require.NoError(t, svc.AssignPermission(ctx, role.ID, id))
	}

	perms, err := svc.GetRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 3)
	for i, p := range perms {
		assert.Equal(t, ids[i], p.ID)
	}

	empty, err := store.UpsertRole(ctx, "auditor", "")
	require.NoError(t, err)
	none, err := svc.GetRolePermissions(ctx, empty.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.GetRolePermissions(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignUnknownReferences(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()

	err := svc.AssignPermission(ctx, 999, permissionID(t, store, "users:read"))
	var integrity *CatalogIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "role", integrity.Missing)

	err = svc.AssignPermission(ctx, roleID(t, store, RoleCustomer), 999)
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "permission", integrity.Missing)
}

func TestRevokeAbsentBindingIsNoop(t *testing.T) {
	svc, store, _ := seededService(t)
	err := svc.RevokePermission(context.Background(), roleID(t, store, RoleCustomer), permissionID(t, store, "rbac:manage"))
	assert.NoError(t, err)
}

func TestSetRolePermissionsReplacesBundle(t *testing.T) {
	svc, store, audit := seededService(t)
	ctx := context.Background()
	customerID := roleID(t, store, RoleCustomer)
	readID := permissionID(t, store, "users:read")

	require.NoError(t, svc.SetRolePermissions(ctx, customerID, []int64{readID, readID}))
	set, err := svc.RolePermissionSet(ctx, RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, []string{"users:read"}, set.Strings())
	assert.Equal(t, []string{shared.AuditRolePermissionSet}, audit.Actions())

	err = svc.SetRolePermissions(ctx, customerID, []int64{readID, 999})
	var integrity *CatalogIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, int64(999), integrity.PermissionID)
	assert.Equal(t, "permission", integrity.Missing)
	set, err = svc.RolePermissionSet(ctx, RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, []string{"users:read"}, set.Strings())
}

func TestPermissionCatalogMutations(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()

	_, err := svc.CreatePermission(ctx, "users:read", "dup")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.CreatePermission(ctx, "not a name", "")
	var nameErr *NameError
	require.ErrorAs(t, err, &nameErr)

	p, err := svc.CreatePermission(ctx, "Reports:Export", "Export reports")
	require.NoError(t, err)
	assert.Equal(t, PermissionName("reports:export"), p.Name)

	p, err = svc.UpdatePermission(ctx, p.ID, "reports:download", "Download reports")
	require.NoError(t, err)
	assert.Equal(t, PermissionName("reports:download"), p.Name)
	require.NoError(t, svc.DeletePermission(ctx, p.ID))

	boundID := permissionID(t, store, "tickets:validate")
	_, err = svc.UpdatePermission(ctx, boundID, "tickets:check-in", "")
	assert.ErrorIs(t, err, ErrPermissionInUse)
	_, err = svc.UpdatePermission(ctx, boundID, "tickets:validate", "Door check-in")
	assert.NoError(t, err)
	assert.ErrorIs(t, svc.DeletePermission(ctx, boundID), ErrPermissionInUse)
}

func TestUnknownRoleHasNoPermissions(t *testing.T) {
	svc, _, _ := seededService(t)
	set, err := svc.RolePermissionSet(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

type countingStore struct {
	*MemoryStore
	loads atomic.Int32
	fail  error
	gate  chan struct{}
}

func (c *countingStore) RolePermissionNames(ctx context.Context, role RoleName) ([]PermissionName, error) {
	c.loads.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail != nil {
		return nil, c.fail
	}
	return c.MemoryStore.RolePermissionNames(ctx, role)
}

func TestRolePermissionSetCollapsesConcurrentLoads(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), mem))
	store := &countingStore{MemoryStore: mem, gate: make(chan struct{})}
	svc := NewService(store, ServiceOptions{Cache: NewPermissionCache(nil, CacheOptions{}, nil, nil)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := svc.RolePermissionSet(context.Background(), RoleCustomer)
			assert.NoError(t, err)
			assert.Equal(t, 4, set.Len())
		}()
	}
	for store.loads.Load() == 0 {
		// wait for the first loader to enter the store
	}
	close(store.gate)
	wg.Wait()

	assert.LessOrEqual(t, store.loads.Load(), int32(8))
	_, err := svc.RolePermissionSet(context.Background(), RoleCustomer)
	require.NoError(t, err)
	loads := store.loads.Load()
	_, err = svc.RolePermissionSet(context.Background(), RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, loads, store.loads.Load(), "cached set must not reload")
}

func TestRolePermissionSetStoreFailure(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), fail: errors.New("db down")}
	store.SetUser(1, RoleCustomer, true)
	svc := NewService(store, ServiceOptions{})

	_, err := svc.RolePermissionSet(context.Background(), RoleCustomer)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)

	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 1, Role: "customer"})
	d := NewGate(NewClaimsSource(svc), 0, nil).Check(ctx, Requirement{})
	assert.Equal(t, StateResolutionFailed, d.State)
}

func TestClaimsSourceReadsRoleFromStore(t *testing.T) {
	svc, store, _ := seededService(t)
	source := NewClaimsSource(svc)

	// The role asserted by the token is ignored.
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 3, Role: "admin"})
	id, err := source.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, id.Role)
	assert.False(t, id.Permissions.Has(shared.PermRBACManage))

	_, err = source.Identity(shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 42}))
	assert.ErrorIs(t, err, ErrNoIdentity)

	store.SetUser(4, RoleOrganizer, false)
	_, err = source.Identity(shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 4}))
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = source.Identity(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestUserAccessCachedUntilInvalidated(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()
	gate := NewGate(NewClaimsSource(svc), 0, nil)
	organizer := shared.ContextWithPrincipal(ctx, &shared.Principal{UserID: 2})
	validate := Requirement{Permissions: []PermissionName{shared.PermTicketsValidate}}

	require.True(t, gate.Check(organizer, validate).Allowed())

	store.SetUser(2, RoleCustomer, true)
	assert.True(t, gate.Check(organizer, validate).Allowed(), "served from the local tier")

	require.NoError(t, svc.Invalidate(ctx))
	assert.Equal(t, StateInsufficientPermission, gate.Check(organizer, validate).State)

	store.SetUser(2, RoleCustomer, false)
	require.NoError(t, svc.Invalidate(ctx))
	assert.Equal(t, StateUnauthenticated, gate.Check(organizer, validate).State)
}

type failingUsers struct {
	*MemoryStore
}

func (failingUsers) UserAccess(context.Context, int64) (UserAccess, error) {
	return UserAccess{}, errors.New("db down")
}

func TestUserLookupFailureIsResolutionFailure(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), mem))
	svc := NewService(failingUsers{mem}, ServiceOptions{})

	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 1})
	d := NewGate(NewClaimsSource(svc), 0, nil).Check(ctx, Requirement{})
	assert.Equal(t, StateResolutionFailed, d.State)
}

// stallingStore parks the first permission load after it has read the store,
// until release is closed.
type stallingStore struct {
	*MemoryStore
	calls   atomic.Int32
	read    chan struct{}
	release chan struct{}
}

func (s *stallingStore) RolePermissionNames(ctx context.Context, role RoleName) ([]PermissionName, error) {
	names, err := s.MemoryStore.RolePermissionNames(ctx, role)
	if s.calls.Add(1) == 1 {
		close(s.read)
		<-s.release
	}
	return names, err
}

func TestRevokeDuringInFlightLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	require.NoError(t, Seed(ctx, mem))
	cache, _, _, _ := newRedisCache(t, CacheOptions{})
	store := &stallingStore{MemoryStore: mem, read: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, ServiceOptions{Cache: cache})

	stale := make(chan PermissionSet, 1)
	go func() {
		set, err := svc.RolePermissionSet(ctx, RoleOrganizer)
		assert.NoError(t, err)
		stale <- set
	}()
	<-store.read

	require.NoError(t, svc.RevokePermission(ctx, roleID(t, mem, RoleOrganizer), permissionID(t, mem, shared.PermTicketsValidate)))

	// A request arriving after the revoke must not join the stale load.
	fresh, err := svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	assert.False(t, fresh.Has(shared.PermTicketsValidate))

	close(store.release)
	assert.True(t, (<-stale).Has(shared.PermTicketsValidate), "load A read before the revoke")

	set, err := svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	assert.False(t, set.Has(shared.PermTicketsValidate))

	// The Redis tier must not hold the stale set either.
	cache.Purge()
	set, err = svc.RolePermissionSet(ctx, RoleOrganizer)
	require.NoError(t, err)
	assert.False(t, set.Has(shared.PermTicketsValidate))
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestWarmLoadsEveryRole(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), mem))
	store := &countingStore{MemoryStore: mem}
	svc := NewService(store, ServiceOptions{Cache: NewPermissionCache(nil, CacheOptions{}, nil, nil)})

	n, err := svc.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), store.loads.Load())

	_, err = svc.RolePermissionSet(context.Background(), RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.loads.Load())
}
