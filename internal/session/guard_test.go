package session

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/audit"
	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

type fakeSessions struct {
	byID    map[uuid.UUID]*model.Session
	revoked []uuid.UUID
}

var _ repository.SessionRepository = (*fakeSessions)(nil)

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[uuid.UUID]*model.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	cpy := *s
	f.byID[s.ID] = &cpy
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id uuid.UUID) (*model.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *s
	return &cpy, nil
}

func (f *fakeSessions) Touch(_ context.Context, id uuid.UUID, lastActivity, lastResumeLog time.Time) error {
	s, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	s.LastActivity = lastActivity
	s.LastResumeLog = lastResumeLog
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	f.revoked = append(f.revoked, userID)
	for _, s := range f.byID {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

type captureStore struct {
	entries []model.AuditEntry
}

func (c *captureStore) Append(_ context.Context, e *model.AuditEntry) error {
	c.entries = append(c.entries, *e)
	return nil
}

func (c *captureStore) actions() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

func newGuardUnderTest(t *testing.T, timeout time.Duration, now time.Time) (*Guard, *fakeSessions, *captureStore) {
	t.Helper()
	sessions := newFakeSessions()
	store := &captureStore{}
	trail := audit.New(store, nil, zap.NewNop())
	g := NewGuard(sessions, trail, timeout).WithClock(func() time.Time { return now })
	return g, sessions, store
}

func makeSession(repo *fakeSessions, lastActivity time.Time) *model.Session {
	s := &model.Session{
		ID:            uuid.Must(uuid.NewV4()),
		UserID:        uuid.Must(uuid.NewV4()),
		LastActivity:  lastActivity,
		LastResumeLog: lastActivity,
	}
	_ = repo.Create(context.Background(), s)
	return s
}

func TestGuard_Tick_ExpiresAfterTimeout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, sessions, store := newGuardUnderTest(t, 1800*time.Second, now)

	// 2000s of inactivity against a 1800s timeout.
	sess := makeSession(sessions, now.Add(-2000*time.Second))

	err := g.Tick(context.Background(), sess, "/api/flashes")
	require.ErrorIs(t, err, errs.ErrSessionExpired)

	_, err = sessions.Get(context.Background(), sess.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.Equal(t, []string{audit.ActionSessionExpired}, store.actions())
	require.EqualValues(t, 2000, store.entries[0].Detail["inactive_seconds"])
	require.Equal(t, "/api/flashes", store.entries[0].Detail["path"])
}

func TestGuard_Tick_RefreshesActivity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, sessions, store := newGuardUnderTest(t, 30*time.Minute, now)

	sess := makeSession(sessions, now.Add(-time.Minute))

	require.NoError(t, g.Tick(context.Background(), sess, "/api/flashes"))
	require.Equal(t, now, sess.LastActivity)
	require.Empty(t, store.actions())

	stored, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, now, stored.LastActivity)
}

func TestGuard_Tick_LogsResumeOncePerThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, sessions, store := newGuardUnderTest(t, 30*time.Minute, now)

	// Gap past the 15m resume threshold but inside the timeout.
	sess := makeSession(sessions, now.Add(-20*time.Minute))

	require.NoError(t, g.Tick(context.Background(), sess, "/a"))
	require.Equal(t, []string{audit.ActionSessionResumed}, store.actions())
	require.Equal(t, now, sess.LastResumeLog)

	// Immediately after, another request is not a resume.
	require.NoError(t, g.Tick(context.Background(), sess, "/b"))
	require.Equal(t, []string{audit.ActionSessionResumed}, store.actions())
}

func TestGuard_Tick_Revoked(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, sessions, store := newGuardUnderTest(t, 30*time.Minute, now)

	sess := makeSession(sessions, now)
	sess.Revoked = true

	err := g.Tick(context.Background(), sess, "/api/flashes")
	require.ErrorIs(t, err, errs.ErrSessionRevoked)
	require.Equal(t, []string{audit.ActionSessionInvalidated}, store.actions())

	_, err = sessions.Get(context.Background(), sess.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGuard_Invalidate(t *testing.T) {
	now := time.Now()
	g, sessions, store := newGuardUnderTest(t, 30*time.Minute, now)
	userID := uuid.Must(uuid.NewV4())

	require.NoError(t, g.Invalidate(context.Background(), userID))
	require.Equal(t, []uuid.UUID{userID}, sessions.revoked)
	require.Equal(t, []string{audit.ActionSessionInvalidated}, store.actions())
}

func TestGuard_ResumeThresholdClamped(t *testing.T) {
	trail := audit.New(&captureStore{}, nil, zap.NewNop())

	require.Equal(t, 5*time.Minute, NewGuard(nil, trail, 4*time.Minute).resumeThreshold())
	require.Equal(t, 10*time.Minute, NewGuard(nil, trail, 20*time.Minute).resumeThreshold())
	require.Equal(t, 15*time.Minute, NewGuard(nil, trail, 2*time.Hour).resumeThreshold())
}
