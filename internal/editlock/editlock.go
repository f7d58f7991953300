// Package editlock implements the advisory, time-boxed edit lock on flashes.
// It is deliberately not mutual exclusion: acquisition is read-then-write
// without a transaction, and a conflict is a warning the caller may override.
// The storage layer stays last-writer-wins.
package editlock

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

// TTL after which a held lock is considered abandoned and can be taken over.
const TTL = 15 * time.Minute

// Result reports the outcome of an acquisition attempt.
type Result struct {
	Acquired bool
	// Holder fields are set when Acquired is false.
	HeldBy    uuid.UUID
	HeldSince time.Time
	HeldFor   time.Duration
}

// Manager acquires and releases edit locks via the flash repository.
type Manager struct {
	flashes repository.FlashRepository
	now     func() time.Time
}

// NewManager constructs a lock manager.
func NewManager(flashes repository.FlashRepository) *Manager {
	return &Manager{flashes: flashes, now: time.Now}
}

// WithClock overrides the time source (tests).
func (m *Manager) WithClock(fn func() time.Time) *Manager {
	m.now = fn
	return m
}

// Acquire takes the lock when it is free, already held by user, or expired.
// Otherwise it reports the current holder without blocking or failing.
func (m *Manager) Acquire(ctx context.Context, flash *model.Flash, userID uuid.UUID) (Result, error) {
	now := m.now()
	// A holder without a start timestamp counts as expired.
	if flash.EditingUser != nil && *flash.EditingUser != userID && flash.EditingStartedAt != nil {
		held := now.Sub(*flash.EditingStartedAt)
		if held <= TTL {
			return Result{
				HeldBy:    *flash.EditingUser,
				HeldSince: *flash.EditingStartedAt,
				HeldFor:   held,
			}, nil
		}
		// Expired: fall through and take over.
	}
	if err := m.flashes.SetEditLock(ctx, flash.ID, userID, now); err != nil {
		return Result{}, err
	}
	flash.EditingUser = &userID
	flash.EditingStartedAt = &now
	return Result{Acquired: true}, nil
}

// Release clears the lock if userID currently holds it; releasing a lock held
// by someone else is a silent no-op.
func (m *Manager) Release(ctx context.Context, flashID, userID uuid.UUID) error {
	return m.flashes.ClearEditLock(ctx, flashID, userID)
}
