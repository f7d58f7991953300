package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

// errAuditInsert marks a transition failure caused only by the audit row
// insert, so the caller can retry the state change without it.
var errAuditInsert = errors.New("audit insert failed")

// FlashRepo implements FlashRepository using PostgreSQL.
type FlashRepo struct{ db *DB }

// NewFlashRepo constructs a flash repository.
func NewFlashRepo(db *DB) *FlashRepo { return &FlashRepo{db: db} }

const flashColumns = `id, type, state, created_by, site_id, title, summary, description,
root_causes, actions, image_refs, occurred_at, language, translation_group_id,
selected_approvers, standalone_investigation, editing_user, editing_started_at,
is_archived, published_at, created_at, updated_at`

// Create inserts a new flash row.
func (r *FlashRepo) Create(ctx context.Context, f *model.Flash) error {
	const q = `
INSERT INTO flashes (` + flashColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := r.db.Pool.Exec(ctx, q,
		f.ID, string(f.Type), string(f.State), f.CreatedBy, f.SiteID,
		f.Title, f.Summary, f.Description, f.RootCauses, f.Actions,
		textArray(f.ImageRefs), f.OccurredAt, f.Language, uuidPtrArg(f.TranslationGroupID),
		textArray(uuidsToStrings(f.SelectedApprovers)), f.StandaloneInvestigation,
		uuidPtrArg(f.EditingUser), f.EditingStartedAt,
		f.IsArchived, f.PublishedAt, f.CreatedAt, f.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateTranslation
	}
	return err
}

// Get loads a flash by id.
func (r *FlashRepo) Get(ctx context.Context, id uuid.UUID) (*model.Flash, error) {
	const q = `SELECT ` + flashColumns + ` FROM flashes WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	f, err := scanFlash(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// List returns flashes matching the filter, newest first. The per-role SQL
// clause is a broad prefilter; callers re-check the access policy per row.
func (r *FlashRepo) List(ctx context.Context, filter repository.ListFilter) ([]model.Flash, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !filter.IncludeArchived {
		conds = append(conds, "is_archived=false")
	}
	if filter.SiteID != nil {
		conds = append(conds, "site_id="+arg(*filter.SiteID))
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		conds = append(conds, "state = ANY("+arg(states)+")")
	}
	if u := filter.VisibleTo; u != nil && u.Role != model.RoleAdmin {
		// created_by is uuid while selected_approvers is text[], so the id is
		// bound twice; a shared placeholder would make Postgres deduce
		// conflicting parameter types and reject the statement.
		switch u.Role {
		case model.RoleSafetyTeam:
			conds = append(conds, "(state <> 'draft' OR created_by="+arg(u.ID)+")")
		case model.RoleComms:
			conds = append(conds, "(created_by="+arg(u.ID)+" OR state IN ('to_comms','published') OR "+arg(u.ID.String())+" = ANY(selected_approvers))")
		default:
			conds = append(conds, "(created_by="+arg(u.ID)+" OR state='published' OR "+arg(u.ID.String())+" = ANY(selected_approvers))")
		}
	}

	q := `SELECT ` + flashColumns + ` FROM flashes`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Flash
	for rows.Next() {
		f, err := scanFlash(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// UpdateContent persists editable fields and bumps updated_at.
func (r *FlashRepo) UpdateContent(ctx context.Context, f *model.Flash) error {
	const q = `
UPDATE flashes
SET title=$2, summary=$3, description=$4, root_causes=$5, actions=$6,
    image_refs=$7, occurred_at=$8, site_id=$9, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		f.ID, f.Title, f.Summary, f.Description, f.RootCauses, f.Actions,
		textArray(f.ImageRefs), f.OccurredAt, f.SiteID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Transition applies a compare-and-swap state change plus the audit insert in
// one transaction. A failed audit insert alone does not block the workflow:
// the state change is retried and committed without it.
func (r *FlashRepo) Transition(
	ctx context.Context, id uuid.UUID, from, to model.FlashState,
	upd repository.TransitionUpdate, entry *model.AuditEntry,
) (bool, error) {
	err := r.transitionTx(ctx, id, from, to, upd, entry)
	if err == nil {
		return entry != nil, nil
	}
	if entry != nil && errors.Is(err, errAuditInsert) {
		if err := r.transitionTx(ctx, id, from, to, upd, nil); err != nil {
			return false, err
		}
		return false, nil
	}
	return false, err
}

func (r *FlashRepo) transitionTx(
	ctx context.Context, id uuid.UUID, from, to model.FlashState,
	upd repository.TransitionUpdate, entry *model.AuditEntry,
) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `
UPDATE flashes
SET state=$3, updated_at=now(),
    selected_approvers = COALESCE($4, selected_approvers),
    published_at = COALESCE($5, published_at)
WHERE id=$1 AND state=$2`
	var approvers []string
	if upd.SelectedApprovers != nil {
		approvers = textArray(uuidsToStrings(*upd.SelectedApprovers))
	}
	tag, err := tx.Exec(ctx, q, id, string(from), string(to), approvers, upd.PublishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("flash %s no longer in %s: %w", id, from, errs.ErrStateConflict)
	}
	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return fmt.Errorf("%w: %w", errAuditInsert, err)
		}
	}
	return nil
}

// Archive sets is_archived with the audit insert in the same transaction.
// Already-archived rows are a no-op without audit.
func (r *FlashRepo) Archive(ctx context.Context, id uuid.UUID, entry *model.AuditEntry) (bool, bool, error) {
	changed, err := r.archiveTx(ctx, id, entry)
	if err == nil {
		return changed, changed && entry != nil, nil
	}
	if entry != nil && errors.Is(err, errAuditInsert) {
		changed, err := r.archiveTx(ctx, id, nil)
		return changed, false, err
	}
	return false, false, err
}

func (r *FlashRepo) archiveTx(ctx context.Context, id uuid.UUID, entry *model.AuditEntry) (changed bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `UPDATE flashes SET is_archived=true, updated_at=now() WHERE id=$1 AND is_archived=false`
	tag, err := tx.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return false, fmt.Errorf("%w: %w", errAuditInsert, err)
		}
	}
	return true, nil
}

// SetEditLock writes the advisory lock fields. Unconditional by design; the
// caller decides whether takeover is appropriate.
func (r *FlashRepo) SetEditLock(ctx context.Context, id, holder uuid.UUID, at time.Time) error {
	const q = `UPDATE flashes SET editing_user=$2, editing_started_at=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, holder, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ClearEditLock clears the lock only when holder still owns it.
func (r *FlashRepo) ClearEditLock(ctx context.Context, id, holder uuid.UUID) error {
	const q = `
UPDATE flashes SET editing_user=NULL, editing_started_at=NULL
WHERE id=$1 AND editing_user=$2`
	_, err := r.db.Pool.Exec(ctx, q, id, holder)
	return err
}

// GroupLanguages returns the language codes present in a translation group.
func (r *FlashRepo) GroupLanguages(ctx context.Context, rootID uuid.UUID) ([]string, error) {
	const q = `SELECT language FROM flashes WHERE id=$1 OR translation_group_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, err
		}
		out = append(out, lang)
	}
	return out, rows.Err()
}

func insertAudit(ctx context.Context, tx pgx.Tx, e *model.AuditEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_entries (id, action, actor, target_type, target_id, detail, ip, severity, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = tx.Exec(ctx, q,
		e.ID, e.Action, uuidPtrArg(e.Actor), e.TargetType, e.TargetID,
		detail, e.IP, string(e.Severity), e.OccurredAt,
	)
	return err
}

func scanFlash(row pgx.Row) (*model.Flash, error) {
	var (
		f                model.Flash
		typ, state       string
		groupID, editing *string
		approvers        []string
	)
	if err := row.Scan(
		&f.ID, &typ, &state, &f.CreatedBy, &f.SiteID,
		&f.Title, &f.Summary, &f.Description, &f.RootCauses, &f.Actions,
		&f.ImageRefs, &f.OccurredAt, &f.Language, &groupID,
		&approvers, &f.StandaloneInvestigation, &editing, &f.EditingStartedAt,
		&f.IsArchived, &f.PublishedAt, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	// Unknown enum values are rejected here, at the persistence boundary.
	t, err := model.ParseFlashType(typ)
	if err != nil {
		return nil, err
	}
	s, err := model.ParseFlashState(state)
	if err != nil {
		return nil, err
	}
	f.Type = t
	f.State = s

	if f.TranslationGroupID, err = uuidPtrFromString(groupID); err != nil {
		return nil, err
	}
	if f.EditingUser, err = uuidPtrFromString(editing); err != nil {
		return nil, err
	}
	if f.SelectedApprovers, err = stringsToUUIDs(approvers); err != nil {
		return nil, err
	}
	return &f, nil
}

// textArray maps a nil slice to an empty one. pgx encodes nil slices as SQL
// NULL, which a NOT NULL text[] column rejects even when it has a default.
func textArray(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func uuidsToStrings(in []uuid.UUID) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}

func stringsToUUIDs(in []string) ([]uuid.UUID, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(in))
	for i, s := range in {
		id, err := uuid.FromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func uuidPtrArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func uuidPtrFromString(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.FromString(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
