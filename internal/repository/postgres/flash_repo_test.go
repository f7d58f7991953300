package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

// anyArgs builds n wildcard matchers; pgxmock matches argument counts even
// when a test does not care about the values.
func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

var flashCols = []string{
	"id", "type", "state", "created_by", "site_id", "title", "summary", "description",
	"root_causes", "actions", "image_refs", "occurred_at", "language", "translation_group_id",
	"selected_approvers", "standalone_investigation", "editing_user", "editing_started_at",
	"is_archived", "published_at", "created_at", "updated_at",
}

func flashRow(id, createdBy uuid.UUID) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(flashCols).AddRow(
		id, "red", "draft", createdBy, uuid.Must(uuid.NewV4()),
		"t", "s", "d", "", "", []string{}, now, "en", nil,
		[]string{}, false, nil, nil,
		false, nil, now, now,
	)
}

func TestFlashRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(flashRow(id, owner))
	f, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, f.ID)
	require.Equal(t, model.StateDraft, f.State)
	require.Equal(t, model.TypeRed, f.Type)

	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFlashRepo_Get_RejectsUnknownState(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(flashCols).AddRow(
			id, "red", "limbo", id, id,
			"t", "s", "d", "", "", []string{}, now, "en", nil,
			[]string{}, false, nil, nil,
			false, nil, now, now,
		))
	_, err := r.Get(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestFlashRepo_Create_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)

	f := &model.Flash{
		ID:        uuid.Must(uuid.NewV4()),
		Type:      model.TypeYellow,
		State:     model.StateDraft,
		CreatedBy: uuid.Must(uuid.NewV4()),
		SiteID:    uuid.Must(uuid.NewV4()),
		Language:  "en",
	}
	mock.ExpectExec(`INSERT INTO flashes`).
		WithArgs(anyArgs(22)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err := r.Create(context.Background(), f)
	require.ErrorIs(t, err, errs.ErrDuplicateTranslation)
}

func TestFlashRepo_Create_EncodesNilSlicesAsEmptyArrays(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	now := time.Now().UTC()

	// A fresh draft has no approvers and no images; the NOT NULL array
	// columns must still receive arrays, never NULL.
	f := &model.Flash{
		ID:        uuid.Must(uuid.NewV4()),
		Type:      model.TypeGreen,
		State:     model.StateDraft,
		CreatedBy: uuid.Must(uuid.NewV4()),
		SiteID:    uuid.Must(uuid.NewV4()),
		Title:     "t",
		Language:  "en",
		CreatedAt: now,
		UpdatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO flashes`).
		WithArgs(f.ID, "green", "draft", f.CreatedBy, f.SiteID,
			"t", "", "", "", "",
			[]string{}, pgxmock.AnyArg(), "en", pgxmock.AnyArg(),
			[]string{}, false, pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_UpdateContent_EncodesNilImageRefsAsEmptyArray(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)

	f := &model.Flash{
		ID:     uuid.Must(uuid.NewV4()),
		SiteID: uuid.Must(uuid.NewV4()),
		Title:  "t",
	}
	mock.ExpectExec(`UPDATE flashes`).
		WithArgs(f.ID, "t", "", "", "", "",
			[]string{}, pgxmock.AnyArg(), f.SiteID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateContent(context.Background(), f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_List_WriterClauseBindsIDTwice(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	writer := &model.User{ID: uuid.Must(uuid.NewV4()), Role: model.RoleWriter, Active: true}

	// The id appears once in uuid context and once in text-array context;
	// the two uses must be separate placeholders.
	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE is_archived=false AND \(created_by=\$1 OR state='published' OR \$2 = ANY\(selected_approvers\)\) ORDER BY created_at DESC`).
		WithArgs(writer.ID, writer.ID.String()).
		WillReturnRows(flashRow(uuid.Must(uuid.NewV4()), writer.ID))
	out, err := r.List(context.Background(), repository.ListFilter{VisibleTo: writer})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_List_CommsClauseBindsIDTwice(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	comms := &model.User{ID: uuid.Must(uuid.NewV4()), Role: model.RoleComms, Active: true}

	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE is_archived=false AND \(created_by=\$1 OR state IN \('to_comms','published'\) OR \$2 = ANY\(selected_approvers\)\) ORDER BY created_at DESC`).
		WithArgs(comms.ID, comms.ID.String()).
		WillReturnRows(flashRow(uuid.Must(uuid.NewV4()), comms.ID))
	out, err := r.List(context.Background(), repository.ListFilter{VisibleTo: comms})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_List_SafetyTeamAndFilters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	safety := &model.User{ID: uuid.Must(uuid.NewV4()), Role: model.RoleSafetyTeam, Active: true}
	site := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT (.+) FROM flashes WHERE is_archived=false AND site_id=\$1 AND state = ANY\(\$2\) AND \(state <> 'draft' OR created_by=\$3\) ORDER BY created_at DESC`).
		WithArgs(site, []string{"published"}, safety.ID).
		WillReturnRows(pgxmock.NewRows(flashCols))
	out, err := r.List(context.Background(), repository.ListFilter{
		VisibleTo: safety,
		SiteID:    &site,
		States:    []model.FlashState{model.StatePublished},
	})
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_Transition_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())

	entry := &model.AuditEntry{
		ID:         "01J0000000000000000000000X",
		Action:     "flash_status_changed",
		TargetType: "flash",
		TargetID:   id.String(),
		Severity:   model.SeverityInfo,
		OccurredAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes`).
		WithArgs(id, "draft", "pending_review", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs(entry.ID, entry.Action, pgxmock.AnyArg(), entry.TargetType, entry.TargetID,
			pgxmock.AnyArg(), entry.IP, "info", entry.OccurredAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	persisted, err := r.Transition(context.Background(), id,
		model.StateDraft, model.StatePendingReview, repository.TransitionUpdate{}, entry)
	require.NoError(t, err)
	require.True(t, persisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_Transition_StateConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes`).
		WithArgs(id, "draft", "pending_review", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := r.Transition(context.Background(), id,
		model.StateDraft, model.StatePendingReview, repository.TransitionUpdate{}, nil)
	require.ErrorIs(t, err, errs.ErrStateConflict)
}

func TestFlashRepo_Transition_AuditFailureRetriesWithout(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())
	entry := &model.AuditEntry{ID: "01X", Action: "flash_status_changed", OccurredAt: time.Now()}

	// First attempt: state change succeeds, audit insert fails, rollback.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes`).
		WithArgs(id, "to_comms", "published", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs(anyArgs(9)...).
		WillReturnError(errors.New("audit table gone"))
	mock.ExpectRollback()

	// Retry: state change alone commits.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes`).
		WithArgs(id, "to_comms", "published", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	persisted, err := r.Transition(context.Background(), id,
		model.StateToComms, model.StatePublished, repository.TransitionUpdate{}, entry)
	require.NoError(t, err)
	require.False(t, persisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashRepo_Archive_NoOpWhenAlreadyArchived(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())
	entry := &model.AuditEntry{ID: "01Y", Action: "flash_archived", OccurredAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes SET is_archived=true`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	changed, persisted, err := r.Archive(context.Background(), id, entry)
	require.NoError(t, err)
	require.False(t, changed)
	require.False(t, persisted)
}

func TestFlashRepo_Archive_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())
	entry := &model.AuditEntry{ID: "01Z", Action: "flash_archived", OccurredAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE flashes SET is_archived=true`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	changed, persisted, err := r.Archive(context.Background(), id, entry)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, persisted)
}

func TestFlashRepo_EditLock(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	id := uuid.Must(uuid.NewV4())
	holder := uuid.Must(uuid.NewV4())
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE flashes SET editing_user=\$2, editing_started_at=\$3 WHERE id=\$1`).
		WithArgs(id, holder, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetEditLock(context.Background(), id, holder, at))

	// Clearing someone else's lock matches no rows and is not an error.
	mock.ExpectExec(`UPDATE flashes SET editing_user=NULL, editing_started_at=NULL`).
		WithArgs(id, holder).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.NoError(t, r.ClearEditLock(context.Background(), id, holder))
}

func TestFlashRepo_GroupLanguages(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewFlashRepo(db)
	root := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT language FROM flashes WHERE id=\$1 OR translation_group_id=\$1`).
		WithArgs(root).
		WillReturnRows(pgxmock.NewRows([]string{"language"}).AddRow("en").AddRow("nb"))
	langs, err := r.GroupLanguages(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, []string{"en", "nb"}, langs)
}
