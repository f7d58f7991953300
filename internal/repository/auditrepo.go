package repository

import (
	"context"

	"github.com/holte-dev/safetyflash/internal/model"
)

// AuditRepository is the primary durable sink for audit entries. Append-only:
// there is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, e *model.AuditEntry) error
}
