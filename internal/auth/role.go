package auth

import (
	"context"
	"fmt"
)

// Role is the closed set of account kinds.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a role name coming from a request or the database.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// DashboardPath is where a freshly logged in user of this role lands.
func (r Role) DashboardPath() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleTeacher:
		return "/teacher"
	case RoleStudent:
		return "/student"
	}
	return LoginPath
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the session middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
