// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Workflow sentinels. The transport layer maps these to status codes; the
// engine itself never inspects HTTP.
var (
	// ErrInvalidTransition indicates the attempted state change is not legal
	// from the flash's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPermissionDenied indicates the actor lacks role/ownership/approver
	// standing for the attempted action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation indicates required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict indicates optimistic concurrency failure: the row left
	// the expected state between read and write.
	ErrStateConflict = errors.New("state conflict")

	// ErrDuplicateTranslation indicates a variant for that language already
	// exists in the translation group.
	ErrDuplicateTranslation = errors.New("duplicate translation")
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist. Flashes the
	// caller may not see report this too; invisibility and absence must be
	// indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionExpired indicates the session passed its inactivity timeout
	// and was destroyed; the caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked indicates the session was invalidated server-side
	// (role change, deactivation) before its natural expiry.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrCSRF indicates a mutating request without a matching CSRF token.
	ErrCSRF = errors.New("csrf token mismatch")
)
