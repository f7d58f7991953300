package model

import (
	"fmt"

	"github.com/holte-dev/safetyflash/internal/errs"
)

// FlashState is the closed set of workflow states. Unknown values are rejected
// at the persistence boundary, never deep in business logic.
type FlashState string

const (
	StateDraft             FlashState = "draft"
	StatePendingSupervisor FlashState = "pending_supervisor"
	StatePendingReview     FlashState = "pending_review"
	StateRequestInfo       FlashState = "request_info"
	StateInInvestigation   FlashState = "in_investigation"
	StateToFinalApprover   FlashState = "to_final_approver"
	StateToComms           FlashState = "to_comms"
	StatePublished         FlashState = "published"
	StateRejected          FlashState = "rejected"
	StateClosed            FlashState = "closed"
)

var flashStates = map[FlashState]struct{}{
	StateDraft:             {},
	StatePendingSupervisor: {},
	StatePendingReview:     {},
	StateRequestInfo:       {},
	StateInInvestigation:   {},
	StateToFinalApprover:   {},
	StateToComms:           {},
	StatePublished:         {},
	StateRejected:          {},
	StateClosed:            {},
}

// Valid reports whether s is a known workflow state.
func (s FlashState) Valid() bool {
	_, ok := flashStates[s]
	return ok
}

// ParseFlashState converts a stored string into a FlashState or fails.
func ParseFlashState(raw string) (FlashState, error) {
	s := FlashState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown flash state %q", errs.ErrValidation, raw)
	}
	return s, nil
}

// FlashType classifies the bulletin.
type FlashType string

const (
	TypeRed    FlashType = "red"    // first release
	TypeYellow FlashType = "yellow" // near miss
	TypeGreen  FlashType = "green"  // investigation
)

// Valid reports whether t is a known flash type.
func (t FlashType) Valid() bool {
	switch t {
	case TypeRed, TypeYellow, TypeGreen:
		return true
	}
	return false
}

// ParseFlashType converts a stored string into a FlashType or fails.
func ParseFlashType(raw string) (FlashType, error) {
	t := FlashType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown flash type %q", errs.ErrValidation, raw)
	}
	return t, nil
}

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleWriter     Role = "writer"
	RoleSafetyTeam Role = "safety_team"
	RoleComms      Role = "comms"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleWriter, RoleSafetyTeam, RoleComms:
		return true
	}
	return false
}

// ParseRole converts a stored string into a Role or fails.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", errs.ErrValidation, raw)
	}
	return r, nil
}

// Decision is a reviewer's verdict on a flash under review.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionRequestInfo Decision = "request_info"
)

// Valid reports whether d is a known review decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestInfo:
		return true
	}
	return false
}

// ParseDecision converts a submitted string into a Decision or fails.
func ParseDecision(raw string) (Decision, error) {
	d := Decision(raw)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown decision %q", errs.ErrValidation, raw)
	}
	return d, nil
}
