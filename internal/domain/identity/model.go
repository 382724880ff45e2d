package identity

import (
	"time"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

// User is a platform account as seen by the messaging and scheduling core.
// Accounts are created and authenticated elsewhere.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Role      auth.Role `db:"role" json:"role"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Contact is a user the caller may message, with live presence.
type Contact struct {
	*User
	Online bool `json:"online"`
}

// contactRoles maps a caller's role to the roles it may message.
var contactRoles = map[auth.Role][]auth.Role{
	auth.RolePatient: {auth.RoleDoctor, auth.RoleNurse},
	auth.RoleDoctor:  {auth.RolePatient, auth.RoleNurse},
	auth.RoleNurse:   {auth.RoleDoctor, auth.RolePatient},
}

// ContactRoles returns the roles a user with role r may message.
func ContactRoles(r auth.Role) []auth.Role {
	return contactRoles[r]
}
