package rbac

import (
	"context"
	"errors"

	"github.com/ticketslave/ticketslave/internal/shared"
)

// IdentitySource resolves the caller of the current request. It returns
// ErrNoIdentity when the caller is anonymous.
type IdentitySource interface {
	Identity(ctx context.Context) (*Identity, error)
}

// IdentitySourceFunc adapts a function to IdentitySource.
type IdentitySourceFunc func(ctx context.Context) (*Identity, error)

// Identity implements IdentitySource.
func (f IdentitySourceFunc) Identity(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// PermissionLoader returns the role a user currently holds and the permission
// set currently bound to a role.
type PermissionLoader interface {
	UserAccess(ctx context.Context, userID int64) (UserAccess, error)
	RolePermissionSet(ctx context.Context, role RoleName) (PermissionSet, error)
}

// ClaimsSource resolves identities from the authenticated principal placed in
// the request context by the auth middleware. Only the user id is taken from
// the token; role and status are read from the user record on every request.
type ClaimsSource struct {
	Loader PermissionLoader
}

// NewClaimsSource constructs a ClaimsSource.
func NewClaimsSource(loader PermissionLoader) *ClaimsSource {
	return &ClaimsSource{Loader: loader}
}

// Identity implements IdentitySource. Unknown and inactive users are anonymous.
func (s *ClaimsSource) Identity(ctx context.Context) (*Identity, error) {
	p := shared.PrincipalFromContext(ctx)
	if p == nil || p.UserID <= 0 {
		return nil, ErrNoIdentity
	}
	access, err := s.Loader.UserAccess(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return nil, ErrNoIdentity
		}
		return nil, asResolutionError(err)
	}
	if !access.Active {
		return nil, ErrNoIdentity
	}
	perms, err := s.Loader.RolePermissionSet(ctx, access.Role)
	if err != nil {
		return nil, asResolutionError(err)
	}
	return &Identity{UserID: p.UserID, Email: p.Email, Role: access.Role, Permissions: perms}, nil
}

func asResolutionError(err error) error {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return err
	}
	return &ResolutionError{Err: err}
}
