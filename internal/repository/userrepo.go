package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/model"
)

// UserRepository provides account storage. Accounts are deactivated, never
// deleted, so audit references stay resolvable.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// SetRole changes the user's role.
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) error
	// Deactivate clears the active flag.
	Deactivate(ctx context.Context, id uuid.UUID) error
}
