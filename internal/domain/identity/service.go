// Package identity is the read side of the user directory: lookups by id and
// the contact list a caller is allowed to message.
package identity

import (
	"context"
	"fmt"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

// Presence reports whether a user has a live channel.
type Presence interface {
	IsOnline(userID int64) bool
}

type Directory struct {
	users    UserRepository
	presence Presence
}

// NewDirectory creates a Directory. presence may be nil, in which case every
// contact is reported offline.
func NewDirectory(users UserRepository, presence Presence) *Directory {
	return &Directory{users: users, presence: presence}
}

func (d *Directory) GetByID(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, apperr.Validation("user id must be positive")
	}
	return d.users.GetByID(ctx, id)
}

// Contacts lists the users id may message, ordered by name.
func (d *Directory) Contacts(ctx context.Context, id auth.Identity, limit, offset int) ([]*Contact, int, error) {
	roles := ContactRoles(id.Role)
	if len(roles) == 0 {
		return nil, 0, apperr.Forbidden("role %q has no contacts", id.Role)
	}

	users, total, err := d.users.ListByRoles(ctx, roles, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("contacts for %s: %w", id, err)
	}

	contacts := make([]*Contact, 0, len(users))
	for _, u := range users {
		c := &Contact{User: u}
		if d.presence != nil {
			c.Online = d.presence.IsOnline(u.ID)
		}
		contacts = append(contacts, c)
	}
	return contacts, total, nil
}
