package postgres

import (
	"context"
	"encoding/json"

	"github.com/holte-dev/safetyflash/internal/model"
)

// AuditRepo implements the primary audit sink using PostgreSQL.
// Append-only: no update or delete statements exist here on purpose.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append durably inserts one audit entry.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_entries (id, action, actor, target_type, target_id, detail, ip, severity, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = r.db.Pool.Exec(ctx, q,
		e.ID, e.Action, uuidPtrArg(e.Actor), e.TargetType, e.TargetID,
		detail, e.IP, string(e.Severity), e.OccurredAt,
	)
	return err
}
