package identity

import (
	"context"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	ListByRoles(ctx context.Context, roles []auth.Role, limit, offset int) ([]*User, int, error)
}
