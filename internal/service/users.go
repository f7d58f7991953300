package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/audit"
	pkgcrypto "github.com/holte-dev/safetyflash/internal/crypto"
	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/policy"
	"github.com/holte-dev/safetyflash/internal/repository"
	"github.com/holte-dev/safetyflash/internal/session"
)

// UserService handles account administration. Mutations that change what a
// live session is allowed to do invalidate the user's sessions immediately.
type UserService struct {
	users repository.UserRepository
	guard *session.Guard
	trail *audit.Trail
	now   func() time.Time
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository, guard *session.Guard, trail *audit.Trail) *UserService {
	return &UserService{users: users, guard: guard, trail: trail, now: time.Now}
}

// NewUserInput carries fields for account creation.
type NewUserInput struct {
	Username string
	Email    string
	Password string
	Role     model.Role
	SiteID   uuid.UUID
}

// Create adds an account. Admin only.
func (s *UserService) Create(ctx context.Context, actor *model.User, in NewUserInput) (*model.User, error) {
	if !policy.CanManageUsers(actor) {
		return nil, s.deny(ctx, actor, "create_user", in.Username)
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", errs.ErrValidation)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, in.Role)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &model.User{
		ID:        id,
		Username:  in.Username,
		Email:     strings.TrimSpace(strings.ToLower(in.Email)),
		Role:      in.Role,
		SiteID:    in.SiteID,
		PwdHash:   pkgcrypto.HashPassword([]byte(in.Password), salt),
		SaltAuth:  salt,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionUserCreated,
		Actor:      &actor.ID,
		TargetType: "user",
		TargetID:   u.ID.String(),
		Detail:     map[string]any{"username": u.Username, "role": string(u.Role)},
		IP:         audit.RemoteIP(ctx),
	})
	return u, nil
}

// ChangeRole updates a user's role and invalidates their live sessions so
// the change takes effect on their next request.
func (s *UserService) ChangeRole(ctx context.Context, actor *model.User, userID uuid.UUID, role model.Role) error {
	if !policy.CanManageUsers(actor) {
		return s.deny(ctx, actor, "change_role", userID.String())
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionUserRoleChanged,
		Actor:      &actor.ID,
		TargetType: "user",
		TargetID:   userID.String(),
		Detail:     map[string]any{"from": string(target.Role), "to": string(role)},
		IP:         audit.RemoteIP(ctx),
	})
	return s.guard.Invalidate(ctx, userID)
}

// Deactivate disables an account (never deletes it) and invalidates its
// sessions.
func (s *UserService) Deactivate(ctx context.Context, actor *model.User, userID uuid.UUID) error {
	if !policy.CanManageUsers(actor) {
		return s.deny(ctx, actor, "deactivate_user", userID.String())
	}
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionUserDeactivated,
		Actor:      &actor.ID,
		TargetType: "user",
		TargetID:   userID.String(),
		IP:         audit.RemoteIP(ctx),
	})
	return s.guard.Invalidate(ctx, userID)
}

func (s *UserService) deny(ctx context.Context, actor *model.User, attempted, target string) error {
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionPermissionDenied,
		Actor:      &actor.ID,
		TargetType: "user",
		TargetID:   target,
		Detail:     map[string]any{"attempted": attempted, "role": string(actor.Role)},
		IP:         audit.RemoteIP(ctx),
		Severity:   model.SeverityWarning,
	})
	return errs.ErrPermissionDenied
}
