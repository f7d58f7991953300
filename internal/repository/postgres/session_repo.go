package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a session at login.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `
INSERT INTO sessions (id, user_id, csrf_token, last_activity, last_resume_log, revoked)
VALUES ($1,$2,$3,$4,$5,false)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.UserID, s.CSRFToken, s.LastActivity, s.LastResumeLog)
	return err
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	const q = `
SELECT id, user_id, csrf_token, last_activity, last_resume_log, revoked, created_at
FROM sessions WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var s model.Session
	if err := row.Scan(
		&s.ID, &s.UserID, &s.CSRFToken, &s.LastActivity, &s.LastResumeLog, &s.Revoked, &s.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Touch refreshes the activity timestamps.
func (r *SessionRepo) Touch(ctx context.Context, id uuid.UUID, lastActivity, lastResumeLog time.Time) error {
	const q = `UPDATE sessions SET last_activity=$2, last_resume_log=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, lastActivity, lastResumeLog)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete destroys a session.
func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM sessions WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// RevokeAllForUser marks every session of a user revoked.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	const q = `UPDATE sessions SET revoked=true WHERE user_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, userID)
	return err
}
