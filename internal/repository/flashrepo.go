// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/model"
)

// TransitionUpdate carries the row fields a state change may set alongside
// the state column itself. Nil pointers leave the column untouched.
type TransitionUpdate struct {
	SelectedApprovers *[]uuid.UUID
	PublishedAt       *time.Time
}

// ListFilter narrows flash listings. VisibleTo applies a broad per-role SQL
// prefilter; the caller must still re-check the access policy per row — the
// SQL form is a performance aid, not the authorization decision.
type ListFilter struct {
	VisibleTo       *model.User
	States          []model.FlashState
	SiteID          *uuid.UUID
	IncludeArchived bool
}

// FlashRepository provides storage for flashes and their workflow fields.
type FlashRepository interface {
	// Create inserts a new flash row.
	Create(ctx context.Context, f *model.Flash) error

	// Get loads a flash by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Flash, error)

	// List returns flashes matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]model.Flash, error)

	// UpdateContent persists editable content fields and bumps updated_at.
	UpdateContent(ctx context.Context, f *model.Flash) error

	// Transition atomically moves the flash from one state to another using a
	// compare-and-swap on the state column, applying upd and inserting entry
	// in the same transaction. When the row is no longer in the expected
	// state it fails with ErrStateConflict. If only the audit insert fails,
	// the state change is retried and committed without it and
	// auditPersisted is false — the caller falls back to file logging.
	Transition(ctx context.Context, id uuid.UUID, from, to model.FlashState, upd TransitionUpdate, entry *model.AuditEntry) (auditPersisted bool, err error)

	// Archive sets is_archived, inserting entry in the same transaction.
	// Archiving an already-archived flash is a no-op: changed is false and
	// no audit row is written.
	Archive(ctx context.Context, id uuid.UUID, entry *model.AuditEntry) (changed, auditPersisted bool, err error)

	// SetEditLock writes the advisory lock fields unconditionally.
	SetEditLock(ctx context.Context, id, holder uuid.UUID, at time.Time) error

	// ClearEditLock clears the lock fields only when holder matches, so a
	// stale client cannot release someone else's fresher lock.
	ClearEditLock(ctx context.Context, id, holder uuid.UUID) error

	// GroupLanguages returns the language codes present in a translation
	// group, including the root's.
	GroupLanguages(ctx context.Context, rootID uuid.UUID) ([]string, error)
}
