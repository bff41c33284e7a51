package roles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/shared"
)

type stubRepo struct {
	roles  map[int64]Role
	held   map[int64]bool
	nextID int64
}

func newStubRepo() *stubRepo {
	repo := &stubRepo{roles: make(map[int64]Role), held: make(map[int64]bool)}
	for _, name := range []rbac.RoleName{rbac.RoleAdmin, rbac.RoleOrganizer, rbac.RoleCustomer} {
		_, _ = repo.CreateRole(context.Background(), name, "")
	}
	return repo
}

func (s *stubRepo) ListRoles(context.Context) ([]Role, error) {
	out := make([]Role, 0, len(s.roles))
	for id := int64(1); id <= s.nextID; id++ {
		if role, ok := s.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *stubRepo) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) CreateRole(_ context.Context, name rbac.RoleName, description string) (Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return Role{}, rbac.ErrDuplicate
		}
	}
	s.nextID++
	role := Role{ID: s.nextID, Name: name, Description: description, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.roles[role.ID] = role
	return role, nil
}

func (s *stubRepo) UpdateRole(_ context.Context, id int64, name rbac.RoleName, description string) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.Name, role.Description, role.UpdatedAt = name, description, time.Now()
	s.roles[id] = role
	return role, nil
}

func (s *stubRepo) DeleteRole(_ context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	if s.held[id] {
		return rbac.ErrRoleInUse
	}
	delete(s.roles, id)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newTestService() (*Service, *stubRepo, *countingInvalidator, *shared.MemoryAuditLog) {
	repo := newStubRepo()
	inv := &countingInvalidator{}
	audit := &shared.MemoryAuditLog{}
	return NewService(repo, inv, audit, nil), repo, inv, audit
}

func TestCreateRoleValidatesName(t *testing.T) {
	svc, _, _, audit := newTestService()
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: " Staff ", Description: "Door staff"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleName("staff"), role.Name)
	assert.Equal(t, []string{shared.AuditRoleCreated}, audit.Actions())

	_, err = svc.CreateRole(ctx, RoleInput{Name: "staff"})
	assert.ErrorIs(t, err, rbac.ErrDuplicate)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "no spaces allowed"})
	var nameErr *rbac.NameError
	assert.ErrorAs(t, err, &nameErr)
}

func TestReferenceRolesAreProtected(t *testing.T) {
	svc, _, inv, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UpdateRole(ctx, 1, RoleInput{Name: "root"})
	assert.ErrorIs(t, err, ErrReferenceRole)

	role, err := svc.UpdateRole(ctx, 1, RoleInput{Name: "admin", Description: "Everything"})
	require.NoError(t, err)
	assert.Equal(t, "Everything", role.Description)
	assert.Zero(t, inv.calls)

	assert.ErrorIs(t, svc.DeleteRole(ctx, 3), ErrReferenceRole)
}

func TestDeleteRoleInvalidatesCache(t *testing.T) {
	svc, repo, inv, audit := newTestService()
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "staff"})
	require.NoError(t, err)

	repo.held[role.ID] = true
	assert.ErrorIs(t, svc.DeleteRole(ctx, role.ID), rbac.ErrRoleInUse)
	assert.Zero(t, inv.calls)

	repo.held[role.ID] = false
	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, []string{shared.AuditRoleCreated, shared.AuditRoleDeleted}, audit.Actions())

	assert.ErrorIs(t, svc.DeleteRole(ctx, role.ID), ErrNotFound)
}

func TestRenameRoleInvalidatesCache(t *testing.T) {
	svc, _, inv, _ := newTestService()
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, RoleInput{Name: "staff"})
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, role.ID, RoleInput{Name: "door-staff"})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
}

func TestHandlerRoutes(t *testing.T) {
	svc, repo, _, _ := newTestService()
	store := rbac.NewMemoryStore()
	require.NoError(t, rbac.Seed(context.Background(), store))
	userIDs := map[string]int64{"admin": 1, "organizer": 2}
	store.SetUser(1, rbac.RoleAdmin, true)
	store.SetUser(2, rbac.RoleOrganizer, true)
	perms := rbac.NewService(store, rbac.ServiceOptions{})
	mw := rbac.Middleware{Gate: rbac.NewGate(rbac.NewClaimsSource(perms), 0, nil)}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := userIDs[r.Header.Get("X-Test-Role")]; ok {
				r = r.WithContext(shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: id}))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/roles", NewHandler(nil, svc, mw).MountRoutes)

	do := func(role, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Test-Role", role)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("", http.MethodGet, "/roles", "").Code)
	assert.Equal(t, http.StatusForbidden, do("organizer", http.MethodGet, "/roles", "").Code)

	rec := do("admin", http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"customer"`)

	rec = do("admin", http.MethodPost, "/roles", `{"name":"staff","description":"Door staff"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, repo.roles, 4)

	assert.Equal(t, http.StatusBadRequest, do("admin", http.MethodPost, "/roles", `{"name":"x"}`).Code)
	assert.Equal(t, http.StatusConflict, do("admin", http.MethodPost, "/roles", `{"name":"staff"}`).Code)
	assert.Equal(t, http.StatusConflict, do("admin", http.MethodDelete, "/roles/1", "").Code)
	assert.Equal(t, http.StatusOK, do("admin", http.MethodDelete, "/roles/4", "").Code)
	assert.Equal(t, http.StatusNotFound, do("admin", http.MethodGet, "/roles/4", "").Code)
}
