// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is an account participating in the review workflow. Users are never
// hard-deleted; Active=false preserves audit and foreign-key integrity.
type User struct {
	ID        uuid.UUID
	Username  string // unique
	Email     string
	Role      Role
	SiteID    uuid.UUID // home worksite
	PwdHash   []byte    // Argon2id(password, SaltAuth)
	SaltAuth  []byte    // per-user auth salt
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Flash is a safety bulletin moving through the review workflow.
type Flash struct {
	ID        uuid.UUID
	Type      FlashType
	State     FlashState
	CreatedBy uuid.UUID
	SiteID    uuid.UUID

	Title       string
	Summary     string
	Description string
	RootCauses  string
	Actions     string
	ImageRefs   []string
	OccurredAt  time.Time

	// Language and TranslationGroupID link per-language variants of one
	// incident. TranslationGroupID is nil for a group root; members point at
	// the root's id.
	Language           string
	TranslationGroupID *uuid.UUID

	// SelectedApprovers is the supervisor set chosen at submission. Any
	// member may approve; first approval wins.
	SelectedApprovers []uuid.UUID

	// StandaloneInvestigation skips the supervisor stage on submit.
	StandaloneInvestigation bool

	// Advisory edit lock. Both nil/zero when unlocked.
	EditingUser      *uuid.UUID
	EditingStartedAt *time.Time

	IsArchived  bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOwner reports whether userID created this flash.
func (f *Flash) IsOwner(userID uuid.UUID) bool {
	return f.CreatedBy == userID
}

// HasApprover reports whether userID is in the selected approver set.
func (f *Flash) HasApprover(userID uuid.UUID) bool {
	for _, id := range f.SelectedApprovers {
		if id == userID {
			return true
		}
	}
	return false
}

// Session is a server-side authenticated session row. Lifecycle: created at
// login, refreshed on every authenticated request, destroyed on logout,
// inactivity expiry, or forced invalidation.
type Session struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	CSRFToken     string
	LastActivity  time.Time
	LastResumeLog time.Time
	Revoked       bool
	CreatedAt     time.Time
}

// AuditSeverity grades audit entries.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry is an immutable record of a security- or workflow-relevant
// event. Created once, never mutated or deleted through the application.
// Actor is nil for system actions.
type AuditEntry struct {
	ID         string // ULID, lexically ordered by creation time
	Action     string
	Actor      *uuid.UUID
	TargetType string
	TargetID   string
	Detail     map[string]any // redacted before any sink write
	IP         string
	Severity   AuditSeverity
	OccurredAt time.Time
}
