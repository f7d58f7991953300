// Package service contains application services for authentication and user
// administration. The workflow engine itself lives in internal/workflow.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/holte-dev/safetyflash/internal/audit"
	pkgcrypto "github.com/holte-dev/safetyflash/internal/crypto"
	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/limiter"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

// SessionToken is what a successful login hands back to the transport layer.
type SessionToken struct {
	Token     string // signed JWT wrapping the session id
	CSRFToken string
	ExpiresAt time.Time // absolute cap; inactivity expiry is usually earlier
}

// AuthService authenticates users and manages the session lifecycle ends the
// guard does not own: creation at login and destruction at logout.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	trail    *audit.Trail
	lim      limiter.Limiter
	signKey  []byte
	maxAge   time.Duration
	now      func() time.Time
}

// NewAuthService constructs AuthService. maxAge caps session lifetime
// regardless of activity.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	trail *audit.Trail,
	lim limiter.Limiter,
	signKey []byte,
	maxAge time.Duration,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		trail:    trail,
		lim:      lim,
		signKey:  signKey,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *AuthService) WithClock(fn func() time.Time) *AuthService {
	s.now = fn
	return s
}

// Login authenticates with rate limiting by (username, ip) and creates a
// server-side session.
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (SessionToken, *model.User, error) {
	if username == "" || password == "" {
		return SessionToken{}, nil, errs.ErrUnauthorized
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return SessionToken{}, nil, err
	}
	if !allowed {
		return SessionToken{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) || !u.Active {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return SessionToken{}, nil, errs.ErrRateLimited
		}
		s.trail.Record(ctx, model.AuditEntry{
			Action:     audit.ActionLoginFailed,
			TargetType: "user",
			TargetID:   username,
			IP:         ip,
			Severity:   model.SeverityWarning,
		})
		// Lookup errors, bad passwords, and deactivated accounts all mask as
		// unauthorized.
		return SessionToken{}, nil, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	tok, err := s.createSession(ctx, u)
	if err != nil {
		return SessionToken{}, nil, err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionLogin,
		Actor:      &u.ID,
		TargetType: "user",
		TargetID:   u.ID.String(),
		IP:         ip,
	})
	return tok, u, nil
}

// Logout destroys the session.
func (s *AuthService) Logout(ctx context.Context, sess *model.Session) error {
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return err
	}
	s.trail.Record(ctx, model.AuditEntry{
		Action:     audit.ActionLogout,
		Actor:      &sess.UserID,
		TargetType: "session",
		TargetID:   sess.ID.String(),
		IP:         audit.RemoteIP(ctx),
	})
	return nil
}

// Authenticate resolves a bearer token to its session and user. Liveness
// (timeout, revocation) is the session guard's job, not this lookup's.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Session, *model.User, error) {
	sid, err := s.parseToken(token)
	if err != nil {
		return nil, nil, errs.ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, errs.ErrUnauthorized
		}
		return nil, nil, err
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, errs.ErrUnauthorized
		}
		return nil, nil, err
	}
	if !u.Active {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, nil, errs.ErrUnauthorized
	}
	return sess, u, nil
}

func (s *AuthService) createSession(ctx context.Context, u *model.User) (SessionToken, error) {
	sid, err := uuid.NewV4()
	if err != nil {
		return SessionToken{}, err
	}
	csrfBytes, err := pkgcrypto.RandToken(32)
	if err != nil {
		return SessionToken{}, err
	}
	now := s.now().UTC()
	sess := &model.Session{
		ID:            sid,
		UserID:        u.ID,
		CSRFToken:     hex.EncodeToString(csrfBytes),
		LastActivity:  now,
		LastResumeLog: now,
		CreatedAt:     now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return SessionToken{}, err
	}

	exp := now.Add(s.maxAge)
	claims := jwt.RegisteredClaims{
		Subject:   u.ID.String(),
		ID:        sid.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, CSRFToken: sess.CSRFToken, ExpiresAt: exp}, nil
}

func (s *AuthService) parseToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, errs.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return uuid.FromString(claims.ID)
}
