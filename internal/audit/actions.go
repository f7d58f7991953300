// Package audit records security- and workflow-relevant events to a primary
// database sink with an append-only file fallback. Audit failures never block
// or surface into the operations being audited.
package audit

// Action codes written by the engine.
const (
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionLogout             = "logout"
	ActionSessionExpired     = "session_expired"
	ActionSessionResumed     = "session_resumed"
	ActionSessionInvalidated = "session_invalidated"
	ActionCSRFFailure        = "csrf_failure"
	ActionPermissionDenied   = "permission_denied"
	ActionFlashCreated       = "flash_created"
	ActionFlashUpdated       = "flash_updated"
	ActionFlashStatusChanged = "flash_status_changed"
	ActionFlashArchived      = "flash_archived"
	ActionTranslationCreated = "flash_translation_created"
	ActionUserCreated        = "user_created"
	ActionUserRoleChanged    = "user_role_changed"
	ActionUserDeactivated    = "user_deactivated"
)

// criticalActions are always mirrored to the file sink, not only when the
// primary write fails.
var criticalActions = map[string]struct{}{
	ActionLogin:            {},
	ActionLoginFailed:      {},
	ActionLogout:           {},
	ActionCSRFFailure:      {},
	ActionPermissionDenied: {},
	ActionFlashCreated:     {},
	ActionFlashUpdated:     {},
	ActionUserCreated:      {},
	ActionUserRoleChanged:  {},
	ActionUserDeactivated:  {},
}

// Critical reports whether the action must reach the file sink regardless of
// the primary sink outcome.
func Critical(action string) bool {
	_, ok := criticalActions[action]
	return ok
}
