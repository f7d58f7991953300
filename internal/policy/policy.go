// Package policy is the single source of truth for visibility and transition
// authorization. Every check in the system routes through it; it is pure and
// storage-independent so list views can re-evaluate it per row.
package policy

import "github.com/holte-dev/safetyflash/internal/model"

// Transition identifies the kind of state change being attempted.
type Transition string

const (
	TransitionSubmit            Transition = "submit_for_review"
	TransitionApproveSupervisor Transition = "approve_as_supervisor"
	TransitionReview            Transition = "review_decision"
	TransitionPublish           Transition = "publish"
	TransitionArchive           Transition = "archive"
	TransitionClose             Transition = "close"
	TransitionEdit              Transition = "edit"
	TransitionTranslate         Transition = "create_translation"
)

// CanManageUsers reports whether user may create accounts, change roles, or
// deactivate users.
func CanManageUsers(user *model.User) bool {
	return user.Active && user.Role == model.RoleAdmin
}

// Visible reports whether user may see flash at all. List views call this per
// row after a broad SQL prefilter; the per-row answer is authoritative.
func Visible(flash *model.Flash, user *model.User) bool {
	if user.Role == model.RoleAdmin {
		return true
	}
	if flash.IsOwner(user.ID) {
		return true
	}
	// Published bulletins are readable by every authenticated user.
	if flash.State == model.StatePublished {
		return true
	}
	// Selected approvers see the flash while it waits on them, regardless of
	// role.
	if flash.State == model.StatePendingSupervisor && flash.HasApprover(user.ID) {
		return true
	}
	switch user.Role {
	case model.RoleSafetyTeam:
		// Everything except another user's bare draft.
		return flash.State != model.StateDraft
	case model.RoleComms:
		return flash.State == model.StateToComms
	}
	// Fail closed: states or roles introduced later are not exposed by
	// accident.
	return false
}

// CanTransition reports whether user has standing to attempt the transition.
// State legality is the workflow's concern; this answers only the
// role/ownership/approver question.
func CanTransition(flash *model.Flash, user *model.User, t Transition) bool {
	if !user.Active {
		return false
	}
	if user.Role == model.RoleAdmin {
		return true
	}
	switch t {
	case TransitionSubmit:
		return flash.IsOwner(user.ID)
	case TransitionApproveSupervisor:
		return flash.HasApprover(user.ID)
	case TransitionReview:
		return user.Role == model.RoleSafetyTeam
	case TransitionPublish:
		return user.Role == model.RoleComms
	case TransitionArchive, TransitionClose:
		return user.Role == model.RoleSafetyTeam
	case TransitionEdit:
		return flash.IsOwner(user.ID) || user.Role == model.RoleSafetyTeam
	case TransitionTranslate:
		return flash.IsOwner(user.ID) || user.Role == model.RoleSafetyTeam || user.Role == model.RoleComms
	}
	return false
}
