package rbac

import (
	"fmt"
	"regexp"
	"strings"
)

// PermissionName is a validated `<module>:<action>[:<scope>]` capability name.
type PermissionName string

// RoleName is a validated role identifier.
type RoleName string

// Reference roles.
const (
	RoleAdmin     RoleName = "admin"
	RoleOrganizer RoleName = "organizer"
	RoleCustomer  RoleName = "customer"
)

const maxPermissionNameLen = 64

var (
	permissionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*:[a-z][a-z0-9-]*(:[a-z][a-z0-9-]*)?$`)
	roleNamePattern       = regexp.MustCompile(`^[a-z][a-z0-9_-]{2,19}$`)
)

// ParsePermissionName normalises and validates a permission name.
func ParsePermissionName(raw string) (PermissionName, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", &NameError{Kind: "permission", Value: raw, Reason: "must not be empty"}
	}
	if len(name) > maxPermissionNameLen {
		return "", &NameError{Kind: "permission", Value: raw, Reason: fmt.Sprintf("longer than %d characters", maxPermissionNameLen)}
	}
	if !permissionNamePattern.MatchString(name) {
		return "", &NameError{Kind: "permission", Value: raw, Reason: "expected <module>:<action>[:<scope>]"}
	}
	return PermissionName(name), nil
}

// ParsePermissionNames validates every entry and drops duplicates, keeping first-seen order.
func ParsePermissionNames(raw []string) ([]PermissionName, error) {
	out := make([]PermissionName, 0, len(raw))
	seen := make(map[PermissionName]struct{}, len(raw))
	for _, r := range raw {
		name, err := ParsePermissionName(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// ParseRoleName normalises and validates a role name.
func ParseRoleName(raw string) (RoleName, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if !roleNamePattern.MatchString(name) {
		return "", &NameError{Kind: "role", Value: raw, Reason: "expected 3-20 lowercase letters, digits, '-' or '_'"}
	}
	return RoleName(name), nil
}

// ParseRoleNames validates every entry and drops duplicates.
func ParseRoleNames(raw []string) ([]RoleName, error) {
	out := make([]RoleName, 0, len(raw))
	seen := make(map[RoleName]struct{}, len(raw))
	for _, r := range raw {
		name, err := ParseRoleName(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// Module returns the leading segment, e.g. "events" for "events:update:own".
func (p PermissionName) Module() string {
	module, _, _ := strings.Cut(string(p), ":")
	return module
}

// Scope returns the optional trailing scope segment, or "".
func (p PermissionName) Scope() string {
	parts := strings.Split(string(p), ":")
	if len(parts) == 3 {
		return parts[2]
	}
	return ""
}

func (p PermissionName) String() string { return string(p) }

func (r RoleName) String() string { return string(r) }

func roleNamesToStrings(names []RoleName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func permissionNamesToStrings(names []PermissionName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
