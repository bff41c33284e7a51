package users

import (
	"strings"
	"time"

	"github.com/ticketslave/ticketslave/internal/rbac"
)

// Status is the account state of a user.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User represents a user account for management. Password hashes never
// leave the auth package.
type User struct {
	ID        int64         `json:"id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	Status    Status        `json:"status"`
	RoleID    int64         `json:"role_id"`
	RoleName  rbac.RoleName `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AssignRoleInput is the body of POST /users/{id}/role.
type AssignRoleInput struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

// StatusInput is the body of PATCH /users/{id}/status.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=active inactive"`
}

// ProfileInput is the body of PATCH /users/{id}. Omitted fields are kept.
type ProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=80"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=80"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
}

func (in ProfileInput) normalized() ProfileInput {
	trim := func(v *string, lower bool) *string {
		if v == nil {
			return nil
		}
		out := strings.TrimSpace(*v)
		if lower {
			out = strings.ToLower(out)
		}
		return &out
	}
	return ProfileInput{FirstName: trim(in.FirstName, false), LastName: trim(in.LastName, false), Email: trim(in.Email, true)}
}

func (in ProfileInput) empty() bool {
	return in.FirstName == nil && in.LastName == nil && in.Email == nil
}

func (in ProfileInput) changes() map[string]any {
	out := make(map[string]any, 3)
	if in.FirstName != nil {
		out["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		out["last_name"] = *in.LastName
	}
	if in.Email != nil {
		out["email"] = *in.Email
	}
	return out
}
