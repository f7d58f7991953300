// Package workflow owns the flash state machine: it authorizes transitions
// through the access policy, applies them with optimistic state checks, and
// records every outcome in the audit trail.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/audit"
	"github.com/holte-dev/safetyflash/internal/editlock"
	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/obs"
	"github.com/holte-dev/safetyflash/internal/policy"
	"github.com/holte-dev/safetyflash/internal/repository"
	"github.com/holte-dev/safetyflash/internal/translation"
)

// ImageCleaner removes pre-compression originals after publication, keeping
// only rendered previews. Image processing itself lives outside the engine.
type ImageCleaner interface {
	CleanupOriginals(ctx context.Context, flashID uuid.UUID) error
}

// NopCleaner satisfies ImageCleaner without doing anything.
type NopCleaner struct{}

// CleanupOriginals implements ImageCleaner.
func (NopCleaner) CleanupOriginals(context.Context, uuid.UUID) error { return nil }

// Service is the flash lifecycle engine.
type Service struct {
	flashes repository.FlashRepository
	trail   *audit.Trail
	locks   *editlock.Manager
	images  ImageCleaner
	log     *zap.Logger
	now     func() time.Time
}

// NewService constructs the workflow engine. images may be nil (no-op).
func NewService(flashes repository.FlashRepository, trail *audit.Trail, images ImageCleaner, log *zap.Logger) *Service {
	if images == nil {
		images = NopCleaner{}
	}
	return &Service{
		flashes: flashes,
		trail:   trail,
		locks:   editlock.NewManager(flashes),
		images:  images,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(fn func() time.Time) *Service {
	s.now = fn
	s.locks.WithClock(fn)
	return s
}

// DraftInput carries the fields a user supplies when creating or editing.
type DraftInput struct {
	Type                    model.FlashType
	SiteID                  uuid.UUID
	Title                   string
	Summary                 string
	Description             string
	RootCauses              string
	Actions                 string
	ImageRefs               []string
	OccurredAt              time.Time
	Language                string
	StandaloneInvestigation bool
}

// CreateDraft creates a new flash in Draft owned by actor.
func (s *Service) CreateDraft(ctx context.Context, actor *model.User, in DraftInput) (*model.Flash, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: flash type is required", errs.ErrValidation)
	}
	if in.Language == "" {
		in.Language = "en"
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	f := &model.Flash{
		ID:                      id,
		Type:                    in.Type,
		State:                   model.StateDraft,
		CreatedBy:               actor.ID,
		SiteID:                  in.SiteID,
		Title:                   in.Title,
		Summary:                 in.Summary,
		Description:             in.Description,
		RootCauses:              in.RootCauses,
		Actions:                 in.Actions,
		ImageRefs:               in.ImageRefs,
		OccurredAt:              in.OccurredAt,
		Language:                in.Language,
		StandaloneInvestigation: in.StandaloneInvestigation,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.flashes.Create(ctx, f); err != nil {
		return nil, err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionFlashCreated,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   f.ID.String(),
		Detail:     map[string]any{"type": string(f.Type), "site_id": f.SiteID.String()},
		IP:         audit.RemoteIP(ctx),
	})
	return f, nil
}

// Get returns a flash the actor may see; invisible flashes are
// indistinguishable from absent ones.
func (s *Service) Get(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	return s.load(ctx, actor, id)
}

// List returns flashes visible to actor. The repository applies a broad
// per-role prefilter; the authoritative per-row policy check happens here.
func (s *Service) List(ctx context.Context, actor *model.User, filter repository.ListFilter) ([]model.Flash, error) {
	filter.VisibleTo = actor
	rows, err := s.flashes.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for i := range rows {
		if policy.Visible(&rows[i], actor) {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// UpdateContent edits the flash's content fields. Published and terminal
// flashes are immutable.
func (s *Service) UpdateContent(ctx context.Context, actor *model.User, id uuid.UUID, in DraftInput) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionEdit) {
		return nil, s.deny(ctx, actor, f, "update_content")
	}
	switch f.State {
	case model.StatePublished, model.StateRejected, model.StateClosed:
		return nil, s.denyState(ctx, actor, f, "update_content")
	}
	f.Title = in.Title
	f.Summary = in.Summary
	f.Description = in.Description
	f.RootCauses = in.RootCauses
	f.Actions = in.Actions
	f.ImageRefs = in.ImageRefs
	f.OccurredAt = in.OccurredAt
	if in.SiteID != uuid.Nil {
		f.SiteID = in.SiteID
	}
	if err := s.flashes.UpdateContent(ctx, f); err != nil {
		return nil, err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionFlashUpdated,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   f.ID.String(),
		Detail:     map[string]any{"state": string(f.State)},
		IP:         audit.RemoteIP(ctx),
	})
	return f, nil
}

// SubmitForReview moves a Draft or RequestInfo flash into review. A non-empty
// approver set routes through PendingSupervisor; standalone investigations
// and approver-less submissions go straight to PendingReview.
func (s *Service) SubmitForReview(ctx context.Context, actor *model.User, id uuid.UUID, approverIDs []uuid.UUID) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionSubmit) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionSubmit))
	}
	if f.State != model.StateDraft && f.State != model.StateRequestInfo {
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionSubmit))
	}
	if err := validateForSubmit(f); err != nil {
		return nil, err
	}

	target := model.StatePendingReview
	upd := repository.TransitionUpdate{}
	if len(approverIDs) > 0 && !f.StandaloneInvestigation {
		target = model.StatePendingSupervisor
		upd.SelectedApprovers = &approverIDs
	}
	if err := s.applyTransition(ctx, actor, f, target, upd, nil); err != nil {
		return nil, err
	}
	if upd.SelectedApprovers != nil {
		f.SelectedApprovers = approverIDs
	}
	return f, nil
}

// ApproveAsSupervisor advances PendingSupervisor to PendingReview. Any user
// in the selected approver set may act; the first approval wins.
func (s *Service) ApproveAsSupervisor(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionApproveSupervisor) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionApproveSupervisor))
	}
	if f.State != model.StatePendingSupervisor {
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionApproveSupervisor))
	}
	if err := s.applyTransition(ctx, actor, f, model.StatePendingReview, repository.TransitionUpdate{}, nil); err != nil {
		return nil, err
	}
	return f, nil
}

// ReviewDecision applies a safety-team verdict from PendingReview,
// InInvestigation, or ToFinalApprover. Green flashes take an extra approval
// hop through ToFinalApprover before reaching Comms.
func (s *Service) ReviewDecision(ctx context.Context, actor *model.User, id uuid.UUID, decision model.Decision) (*model.Flash, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: unknown decision %q", errs.ErrValidation, decision)
	}
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionReview) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionReview))
	}
	switch f.State {
	case model.StatePendingReview, model.StateInInvestigation, model.StateToFinalApprover:
	default:
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionReview))
	}

	var target model.FlashState
	switch decision {
	case model.DecisionApprove:
		if f.Type == model.TypeGreen && f.State != model.StateToFinalApprover {
			target = model.StateToFinalApprover
		} else {
			target = model.StateToComms
		}
	case model.DecisionReject:
		target = model.StateRejected
	case model.DecisionRequestInfo:
		target = model.StateRequestInfo
	}

	detail := map[string]any{"decision": string(decision)}
	if err := s.applyTransition(ctx, actor, f, target, repository.TransitionUpdate{}, detail); err != nil {
		return nil, err
	}
	return f, nil
}

// Publish releases a ToComms flash to all users and triggers cleanup of
// pre-compression image originals.
func (s *Service) Publish(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionPublish) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionPublish))
	}
	if f.State != model.StateToComms {
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionPublish))
	}

	now := s.now().UTC()
	upd := repository.TransitionUpdate{PublishedAt: &now}
	if err := s.applyTransition(ctx, actor, f, model.StatePublished, upd, nil); err != nil {
		return nil, err
	}
	f.PublishedAt = &now

	// Best effort: a failed cleanup leaves orphaned originals, not a broken
	// bulletin.
	if err := s.images.CleanupOriginals(ctx, f.ID); err != nil {
		s.log.Warn("image cleanup after publish failed",
			zap.String("flash_id", f.ID.String()),
			zap.Error(err),
		)
	}
	return f, nil
}

// Archive flags a Published or Rejected flash as archived. Idempotent:
// archiving an already-archived flash is a no-op and writes no audit entry.
func (s *Service) Archive(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionArchive) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionArchive))
	}
	if f.State != model.StatePublished && f.State != model.StateRejected {
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionArchive))
	}
	if f.IsArchived {
		return f, nil
	}

	entry := model.AuditEntry{
		Action:     audit.ActionFlashArchived,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   f.ID.String(),
		Detail:     map[string]any{"state": string(f.State)},
		IP:         audit.RemoteIP(ctx),
	}
	s.trail.Prepare(&entry)
	changed, auditPersisted, err := s.flashes.Archive(ctx, f.ID, &entry)
	if err != nil {
		return nil, err
	}
	if changed && !auditPersisted {
		s.trail.RecordFile(entry)
	}
	f.IsArchived = true
	return f, nil
}

// Close moves a Published or Rejected flash to the terminal Closed state.
func (s *Service) Close(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionClose) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionClose))
	}
	if f.State != model.StatePublished && f.State != model.StateRejected {
		return nil, s.denyState(ctx, actor, f, string(policy.TransitionClose))
	}
	if err := s.applyTransition(ctx, actor, f, model.StateClosed, repository.TransitionUpdate{}, nil); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateTranslation creates a language variant in the flash's translation
// group. Variants start in Draft and repeat review; the audit entry records
// the source so reviewers can tell a translation from a new incident.
func (s *Service) CreateTranslation(ctx context.Context, actor *model.User, id uuid.UUID, lang string) (*model.Flash, error) {
	if lang == "" || len(lang) > 8 {
		return nil, fmt.Errorf("%w: language code is required", errs.ErrValidation)
	}
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionTranslate) {
		return nil, s.deny(ctx, actor, f, string(policy.TransitionTranslate))
	}

	rootID := translation.GroupRootID(f)
	langs, err := s.flashes.GroupLanguages(ctx, rootID)
	if err != nil {
		return nil, err
	}
	for _, l := range langs {
		if l == lang {
			return nil, fmt.Errorf("%w: %s already present in group %s", errs.ErrDuplicateTranslation, lang, rootID)
		}
	}

	variant, err := translation.NewVariant(f, lang, actor.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	// The unique (group, language) index catches the read-check race.
	if err := s.flashes.Create(ctx, variant); err != nil {
		return nil, err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionTranslationCreated,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   variant.ID.String(),
		Detail: map[string]any{
			"source_flash_id": f.ID.String(),
			"group_id":        rootID.String(),
			"language":        lang,
			"initial_state":   string(model.StateDraft),
		},
		IP: audit.RemoteIP(ctx),
	})
	return variant, nil
}

// AcquireEditLock takes or reports the advisory edit lock on a flash.
func (s *Service) AcquireEditLock(ctx context.Context, actor *model.User, id uuid.UUID) (editlock.Result, error) {
	f, err := s.load(ctx, actor, id)
	if err != nil {
		return editlock.Result{}, err
	}
	if !policy.CanTransition(f, actor, policy.TransitionEdit) {
		return editlock.Result{}, s.deny(ctx, actor, f, "acquire_edit_lock")
	}
	return s.locks.Acquire(ctx, f, actor.ID)
}

// ReleaseEditLock drops the lock if actor holds it.
func (s *Service) ReleaseEditLock(ctx context.Context, actor *model.User, id uuid.UUID) error {
	return s.locks.Release(ctx, id, actor.ID)
}

func (s *Service) load(ctx context.Context, actor *model.User, id uuid.UUID) (*model.Flash, error) {
	f, err := s.flashes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Visible(f, actor) {
		return nil, errs.ErrNotFound
	}
	return f, nil
}

// applyTransition runs the CAS state change, mutates f on success, and
// handles the audit fallback path.
func (s *Service) applyTransition(
	ctx context.Context, actor *model.User, f *model.Flash,
	target model.FlashState, upd repository.TransitionUpdate, extra map[string]any,
) error {
	from := f.State
	detail := map[string]any{"from": string(from), "to": string(target)}
	for k, v := range extra {
		detail[k] = v
	}
	severity := model.SeverityInfo
	if target == model.StatePublished {
		severity = model.SeverityCritical
	}
	entry := model.AuditEntry{
		Action:     audit.ActionFlashStatusChanged,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   f.ID.String(),
		Detail:     detail,
		IP:         audit.RemoteIP(ctx),
		Severity:   severity,
	}
	s.trail.Prepare(&entry)

	auditPersisted, err := s.flashes.Transition(ctx, f.ID, from, target, upd, &entry)
	if err != nil {
		return err
	}
	// Published bulletins are release events; mirror them to the file sink
	// even when the primary write went through.
	if !auditPersisted || severity == model.SeverityCritical {
		s.trail.RecordFile(entry)
	}
	f.State = target
	f.UpdatedAt = s.now().UTC()
	obs.FlashTransition(string(from), string(target))
	return nil
}

// deny audits a permission failure and returns ErrPermissionDenied.
func (s *Service) deny(ctx context.Context, actor *model.User, f *model.Flash, attempted string) error {
	s.auditDenied(ctx, actor, f, attempted, "no standing")
	return errs.ErrPermissionDenied
}

// denyState audits an attempt from an illegal state and returns
// ErrInvalidTransition. Wrong-state attempts are audited the same as
// wrong-role ones; only the surfaced error differs.
func (s *Service) denyState(ctx context.Context, actor *model.User, f *model.Flash, attempted string) error {
	s.auditDenied(ctx, actor, f, attempted, "illegal state "+string(f.State))
	return fmt.Errorf("%w: %s from %s", errs.ErrInvalidTransition, attempted, f.State)
}

func (s *Service) auditDenied(ctx context.Context, actor *model.User, f *model.Flash, attempted, reason string) {
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionPermissionDenied,
		Actor:      &actor.ID,
		TargetType: "flash",
		TargetID:   f.ID.String(),
		Detail: map[string]any{
			"attempted": attempted,
			"state":     string(f.State),
			"reason":    reason,
			"role":      string(actor.Role),
		},
		IP:       audit.RemoteIP(ctx),
		Severity: model.SeverityWarning,
	})
}

func validateForSubmit(f *model.Flash) error {
	var missing []string
	if f.Title == "" {
		missing = append(missing, "title")
	}
	if f.Description == "" {
		missing = append(missing, "description")
	}
	if f.OccurredAt.IsZero() {
		missing = append(missing, "occurred_at")
	}
	if f.SiteID == uuid.Nil {
		missing = append(missing, "site")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", errs.ErrValidation, missing)
	}
	return nil
}

// IsWorkflowError reports whether err belongs to the recoverable-and-reported
// class the transport maps to client errors.
func IsWorkflowError(err error) bool {
	return errors.Is(err, errs.ErrInvalidTransition) ||
		errors.Is(err, errs.ErrPermissionDenied) ||
		errors.Is(err, errs.ErrValidation) ||
		errors.Is(err, errs.ErrStateConflict) ||
		errors.Is(err, errs.ErrDuplicateTranslation)
}
