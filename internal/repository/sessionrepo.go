package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/model"
)

// SessionRepository stores server-side session rows.
type SessionRepository interface {
	// Create inserts a session at login.
	Create(ctx context.Context, s *model.Session) error
	// Get loads a session by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// Touch refreshes activity timestamps after the guard's checks pass.
	Touch(ctx context.Context, id uuid.UUID, lastActivity, lastResumeLog time.Time) error
	// Delete destroys a session (logout, expiry, invalidation).
	Delete(ctx context.Context, id uuid.UUID) error
	// RevokeAllForUser marks every live session of a user revoked so the next
	// request bearing one is rejected immediately.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}
