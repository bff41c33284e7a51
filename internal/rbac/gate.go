package rbac

import (
	"context"
	"errors"
	"time"
)

// State is the outcome of a gate evaluation.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateResolutionFailed
	StateInsufficientRole
	StateInsufficientPermission
	StateAllowed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateResolutionFailed:
		return "resolution_failed"
	case StateInsufficientRole:
		return "insufficient_role"
	case StateInsufficientPermission:
		return "insufficient_permission"
	case StateAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Requirement describes what a protected resource demands. Roles is an
// any-of membership check, Permissions must all be held and at least one of
// AnyPermissions must be held. Empty fields impose nothing, but the caller
// must always be authenticated.
type Requirement struct {
	Roles          []RoleName
	Permissions    []PermissionName
	AnyPermissions []PermissionName
}

// RequirementSpec is the unvalidated form of a Requirement.
type RequirementSpec struct {
	Roles          []string
	Permissions    []string
	AnyPermissions []string
}

// ParseRequirement validates every role and permission name.
func ParseRequirement(in RequirementSpec) (Requirement, error) {
	roles, err := ParseRoleNames(in.Roles)
	if err != nil {
		return Requirement{}, err
	}
	all, err := ParsePermissionNames(in.Permissions)
	if err != nil {
		return Requirement{}, err
	}
	anyOf, err := ParsePermissionNames(in.AnyPermissions)
	if err != nil {
		return Requirement{}, err
	}
	return Requirement{Roles: roles, Permissions: all, AnyPermissions: anyOf}, nil
}

// MustRequirement is ParseRequirement for route tables; it panics on invalid names.
func MustRequirement(in RequirementSpec) Requirement {
	req, err := ParseRequirement(in)
	if err != nil {
		panic(err)
	}
	return req
}

// Resolution is the state of identity resolution handed to Decide.
type Resolution struct {
	Pending  bool
	Identity *Identity
	Err      error
}

// Decision is the result of evaluating a Requirement.
type Decision struct {
	State    State
	Identity *Identity
	err      error
}

// Allowed reports whether access is granted.
func (d Decision) Allowed() bool { return d.State == StateAllowed }

// Err returns the denial reason, or nil when allowed or still loading.
func (d Decision) Err() error { return d.err }

// Decide evaluates req against res. The first failing check wins:
// resolution, then role membership, then all-of permissions, then any-of.
func Decide(res Resolution, req Requirement) Decision {
	if res.Pending {
		return Decision{State: StateLoading}
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrNoIdentity) || errors.Is(res.Err, ErrResolveTimeout) {
			return Decision{State: StateUnauthenticated, err: ErrUnauthenticated}
		}
		var resErr *ResolutionError
		if !errors.As(res.Err, &resErr) {
			resErr = &ResolutionError{Err: res.Err}
		}
		return Decision{State: StateResolutionFailed, err: resErr}
	}
	id := res.Identity
	if id == nil {
		return Decision{State: StateUnauthenticated, err: ErrUnauthenticated}
	}
	if !HasRole(id.Role, req.Roles) {
		return Decision{State: StateInsufficientRole, Identity: id, err: &InsufficientRoleError{
			Required: req.Roles,
			Actual:   id.Role,
		}}
	}
	if missing := MissingPermissions(id.Permissions, req.Permissions); len(missing) > 0 {
		return Decision{State: StateInsufficientPermission, Identity: id, err: &InsufficientPermissionError{
			Missing: missing,
		}}
	}
	if !HasAnyPermission(id.Permissions, req.AnyPermissions) {
		return Decision{State: StateInsufficientPermission, Identity: id, err: &InsufficientPermissionError{
			Missing: req.AnyPermissions,
			AnyOf:   true,
		}}
	}
	return Decision{State: StateAllowed, Identity: id}
}

// DefaultResolveTimeout bounds identity resolution when the gate is built without one.
const DefaultResolveTimeout = 3 * time.Second

// Gate resolves the caller and decides access. It never mutates RBAC state.
type Gate struct {
	source  IdentitySource
	timeout time.Duration
	metrics *Metrics
}

// NewGate constructs a Gate. A non-positive timeout selects DefaultResolveTimeout.
func NewGate(source IdentitySource, timeout time.Duration, metrics *Metrics) *Gate {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Gate{source: source, timeout: timeout, metrics: metrics}
}

// Check resolves the caller's identity and evaluates req. A resolution that
// outlives the gate timeout is treated as unauthenticated; cancellation of
// ctx itself is a resolution failure.
func (g *Gate) Check(ctx context.Context, req Requirement) Decision {
	decision := Decide(g.resolve(ctx), req)
	g.metrics.ObserveDecision(decision.State)
	return decision
}

func (g *Gate) resolve(ctx context.Context) Resolution {
	if g == nil || g.source == nil {
		return Resolution{Err: ErrNoIdentity}
	}
	if err := ctx.Err(); err != nil {
		return Resolution{Err: &ResolutionError{Err: err}}
	}
	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		id  *Identity
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := g.source.Identity(rctx)
		done <- result{id: id, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return Resolution{Identity: r.id}
		}
		if ctx.Err() != nil {
			return Resolution{Err: &ResolutionError{Err: ctx.Err()}}
		}
		if errors.Is(r.err, context.DeadlineExceeded) && rctx.Err() != nil {
			return Resolution{Err: ErrResolveTimeout}
		}
		return Resolution{Err: r.err}
	case <-rctx.Done():
		if ctx.Err() != nil {
			return Resolution{Err: &ResolutionError{Err: ctx.Err()}}
		}
		return Resolution{Err: ErrResolveTimeout}
	}
}
