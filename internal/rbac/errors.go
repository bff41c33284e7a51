package rbac

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ticketslave/ticketslave/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates a unique name collision.
	ErrDuplicate = fmt.Errorf("rbac: %w", httpx.ErrDuplicate)
	// ErrPermissionInUse blocks renaming or deleting a permission bound to a role.
	ErrPermissionInUse = fmt.Errorf("rbac: permission is bound to a role: %w", httpx.ErrConflict)
	// ErrRoleInUse blocks deleting a role that users still hold.
	ErrRoleInUse = fmt.Errorf("rbac: role is assigned to users: %w", httpx.ErrConflict)
	// ErrUnknownUser is returned by UserAccess for an id with no user record.
	ErrUnknownUser = errors.New("rbac: unknown user")
	// ErrNoIdentity is returned by identity sources when the caller is anonymous.
	ErrNoIdentity = errors.New("rbac: no identity")
	// ErrUnauthenticated is the denial for callers without a resolvable identity.
	ErrUnauthenticated = fmt.Errorf("authentication required: %w", httpx.ErrUnauthorized)
	// ErrResolveTimeout marks identity resolution that exceeded the gate timeout.
	ErrResolveTimeout = errors.New("rbac: identity resolution timed out")
)

// NameError reports a malformed role or permission name.
type NameError struct {
	Kind   string
	Value  string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Value, e.Reason)
}

func (e *NameError) Unwrap() error { return httpx.ErrValidation }

// FieldErrors implements httpx.FieldErrorer.
func (e *NameError) FieldErrors() []httpx.ErrorField {
	return []httpx.ErrorField{{Field: "name", Code: "invalid_" + e.Kind + "_name", Message: e.Error()}}
}

// InsufficientRoleError is the denial for a caller whose role is not allowed.
type InsufficientRoleError struct {
	Required []RoleName
	Actual   RoleName
}

func (e *InsufficientRoleError) Error() string {
	return fmt.Sprintf("insufficient role: requires one of [%s], current role is %q",
		strings.Join(roleNamesToStrings(e.Required), ", "), e.Actual)
}

func (e *InsufficientRoleError) Unwrap() error { return httpx.ErrForbidden }

// FieldErrors implements httpx.FieldErrorer.
func (e *InsufficientRoleError) FieldErrors() []httpx.ErrorField {
	fields := make([]httpx.ErrorField, 0, len(e.Required))
	for _, r := range e.Required {
		fields = append(fields, httpx.ErrorField{Field: "role", Code: "required_role", Message: string(r)})
	}
	return fields
}

// InsufficientPermissionError is the denial for a caller missing permissions.
// AnyOf is set when a single permission out of Missing would have sufficed.
type InsufficientPermissionError struct {
	Missing []PermissionName
	AnyOf   bool
}

func (e *InsufficientPermissionError) Error() string {
	if e.AnyOf {
		return fmt.Sprintf("insufficient permissions: requires one of %s", strings.Join(permissionNamesToStrings(e.Missing), ", "))
	}
	return fmt.Sprintf("insufficient permissions: missing %s", strings.Join(permissionNamesToStrings(e.Missing), ", "))
}

func (e *InsufficientPermissionError) Unwrap() error { return httpx.ErrForbidden }

// FieldErrors implements httpx.FieldErrorer.
func (e *InsufficientPermissionError) FieldErrors() []httpx.ErrorField {
	fields := make([]httpx.ErrorField, 0, len(e.Missing))
	for _, p := range e.Missing {
		fields = append(fields, httpx.ErrorField{Field: "permission", Code: "missing_permission", Message: string(p)})
	}
	return fields
}

// CatalogIntegrityError reports a binding that references an unknown role or permission.
type CatalogIntegrityError struct {
	RoleID       int64
	PermissionID int64
	Missing      string
}

func (e *CatalogIntegrityError) Error() string {
	switch e.Missing {
	case "role":
		return fmt.Sprintf("catalog integrity: role %d does not exist", e.RoleID)
	case "permission":
		return fmt.Sprintf("catalog integrity: permission %d does not exist", e.PermissionID)
	default:
		return fmt.Sprintf("catalog integrity: role %d or permission %d does not exist", e.RoleID, e.PermissionID)
	}
}

func (e *CatalogIntegrityError) Unwrap() error { return httpx.ErrValidation }

// FieldErrors implements httpx.FieldErrorer.
func (e *CatalogIntegrityError) FieldErrors() []httpx.ErrorField {
	field := e.Missing
	if field == "" {
		field = "binding"
	}
	return []httpx.ErrorField{{Field: field, Code: "unknown_reference", Message: e.Error()}}
}

// ResolutionError wraps a failure to determine the caller's permissions. It is
// distinct from a denial: the answer is unknown, not negative.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return "rbac: resolve permissions: " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }
