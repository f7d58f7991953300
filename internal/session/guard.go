// Package session enforces inactivity timeouts and forced invalidation on
// server-side sessions.
package session

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/audit"
	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

// Resume-log rate limiting bounds. The threshold is half the inactivity
// timeout, clamped to [5m, 15m].
const (
	minResumeThreshold = 5 * time.Minute
	maxResumeThreshold = 15 * time.Minute
)

// Guard checks session liveness on every authenticated request.
type Guard struct {
	sessions repository.SessionRepository
	trail    *audit.Trail
	timeout  time.Duration
	now      func() time.Time
}

// NewGuard constructs a Guard with the configured inactivity timeout.
func NewGuard(sessions repository.SessionRepository, trail *audit.Trail, timeout time.Duration) *Guard {
	return &Guard{sessions: sessions, trail: trail, timeout: timeout, now: time.Now}
}

// WithClock overrides the time source (tests).
func (g *Guard) WithClock(fn func() time.Time) *Guard {
	g.now = fn
	return g
}

func (g *Guard) resumeThreshold() time.Duration {
	th := g.timeout / 2
	if th < minResumeThreshold {
		th = minResumeThreshold
	}
	if th > maxResumeThreshold {
		th = maxResumeThreshold
	}
	return th
}

// Tick validates the session against revocation and the inactivity timeout,
// logs rate-limited resume events, and refreshes last-activity. The refresh
// happens exactly once, after the checks — refreshing first would make the
// timeout unreachable. Returns ErrSessionRevoked or ErrSessionExpired when
// the session was destroyed and the caller must force re-authentication.
func (g *Guard) Tick(ctx context.Context, sess *model.Session, path string) error {
	now := g.now()

	if sess.Revoked {
		if err := g.sessions.Delete(ctx, sess.ID); err != nil {
			return err
		}
		g.trail.Record(ctx, model.AuditEntry{
			Action:     audit.ActionSessionInvalidated,
			Actor:      &sess.UserID,
			TargetType: "session",
			TargetID:   sess.ID.String(),
			Detail:     map[string]any{"path": path},
			IP:         audit.RemoteIP(ctx),
			Severity:   model.SeverityWarning,
		})
		return errs.ErrSessionRevoked
	}

	gap := now.Sub(sess.LastActivity)
	if gap > g.timeout {
		if err := g.sessions.Delete(ctx, sess.ID); err != nil {
			return err
		}
		g.trail.Record(ctx, model.AuditEntry{
			Action:     audit.ActionSessionExpired,
			Actor:      &sess.UserID,
			TargetType: "session",
			TargetID:   sess.ID.String(),
			Detail: map[string]any{
				"inactive_seconds": int64(gap.Seconds()),
				"path":             path,
			},
			IP:       audit.RemoteIP(ctx),
			Severity: model.SeverityWarning,
		})
		return errs.ErrSessionExpired
	}

	th := g.resumeThreshold()
	resumeLog := sess.LastResumeLog
	if gap >= th && now.Sub(sess.LastResumeLog) > th {
		g.trail.Record(ctx, model.AuditEntry{
			Action:     audit.ActionSessionResumed,
			Actor:      &sess.UserID,
			TargetType: "session",
			TargetID:   sess.ID.String(),
			Detail: map[string]any{
				"inactive_seconds": int64(gap.Seconds()),
				"path":             path,
			},
			IP: audit.RemoteIP(ctx),
		})
		resumeLog = now
	}

	if err := g.sessions.Touch(ctx, sess.ID, now, resumeLog); err != nil {
		return err
	}
	sess.LastActivity = now
	sess.LastResumeLog = resumeLog
	return nil
}

// Invalidate revokes every live session of a user. Role changes and
// deactivation take effect on the user's next request instead of at the next
// natural timeout.
func (g *Guard) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := g.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	g.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionSessionInvalidated,
		TargetType: "user",
		TargetID:   userID.String(),
		Detail:     map[string]any{"reason": "forced invalidation"},
		IP:         audit.RemoteIP(ctx),
		Severity:   model.SeverityWarning,
	})
	return nil
}
