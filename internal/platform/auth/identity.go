package auth

import (
	"context"
	"fmt"
	"strconv"
)

// Role is the caller's role on the platform.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleNurse:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether the role belongs to clinical staff.
func (r Role) IsStaff() bool {
	return r == RoleDoctor || r == RoleNurse
}

// Identity is the authenticated actor behind a request or connection. It is
// passed explicitly into every messaging and scheduling call.
type Identity struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (id Identity) String() string {
	return string(id.Role) + ":" + strconv.FormatInt(id.UserID, 10)
}

// Valid reports whether the identity carries a usable user id and role.
func (id Identity) Valid() bool {
	if id.UserID <= 0 {
		return false
	}
	_, err := ParseRole(string(id.Role))
	return err == nil
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity placed on ctx by the auth
// middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
