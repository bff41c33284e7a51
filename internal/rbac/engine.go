package rbac

import (
	"slices"
	"strings"
)

// PermissionSet is a caller's held permissions. A nil set holds nothing.
type PermissionSet map[PermissionName]struct{}

// NewPermissionSet builds a set from names.
func NewPermissionSet(names ...PermissionName) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// PermissionSetFromStrings builds a set from raw names, normalising case and
// whitespace. Blank entries are skipped.
func PermissionSetFromStrings(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		set[PermissionName(n)] = struct{}{}
	}
	return set
}

// Has reports whether name is held.
func (s PermissionSet) Has(name PermissionName) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of held permissions.
func (s PermissionSet) Len() int { return len(s) }

// Names returns the held names sorted ascending.
func (s PermissionSet) Names() []PermissionName {
	out := make([]PermissionName, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Strings returns Names as plain strings.
func (s PermissionSet) Strings() []string {
	return permissionNamesToStrings(s.Names())
}

// HasAllPermissions is true iff every required name is held. An empty
// requirement is always satisfied.
func HasAllPermissions(held PermissionSet, required []PermissionName) bool {
	for _, r := range required {
		if !held.Has(r) {
			return false
		}
	}
	return true
}

// HasAnyPermission is true iff at least one required name is held. An empty
// requirement is always satisfied.
func HasAnyPermission(held PermissionSet, required []PermissionName) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if held.Has(r) {
			return true
		}
	}
	return false
}

// HasRole is true iff allowed is empty or contains role.
func HasRole(role RoleName, allowed []RoleName) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, role)
}

// MissingPermissions returns the required names not held, in requirement order.
func MissingPermissions(held PermissionSet, required []PermissionName) []PermissionName {
	var missing []PermissionName
	for _, r := range required {
		if !held.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}
