package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
)

var userCols = []string{
	"id", "username", "email", "role", "site_id",
	"pwd_hash", "salt_auth", "active", "created_at", "updated_at",
}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: "u",
		Role:     model.RoleWriter,
		SiteID:   uuid.Must(uuid.NewV4()),
		PwdHash:  []byte("h"),
		SaltAuth: []byte("s"),
		Active:   true,
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.Email, "writer", u.SiteID, u.PwdHash, u.SaltAuth, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.Email, "writer", u.SiteID, u.PwdHash, u.SaltAuth, true).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	site := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "u", "u@example.com", "safety_team", site, []byte("h"), []byte("s"), true, now, now))
	u, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, model.RoleSafetyTeam, u.Role)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByID_RejectsUnknownRole(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "u", "", "superuser", id, []byte("h"), []byte("s"), true, now, now))
	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestUserRepo_SetRole_and_Deactivate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE users SET role=\$2, updated_at=now\(\) WHERE id=\$1`).
		WithArgs(id, "comms").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetRole(ctx, id, model.RoleComms))

	mock.ExpectExec(`UPDATE users SET role=\$2, updated_at=now\(\) WHERE id=\$1`).
		WithArgs(id, "comms").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetRole(ctx, id, model.RoleComms), errs.ErrNotFound)

	mock.ExpectExec(`UPDATE users SET active=false, updated_at=now\(\) WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Deactivate(ctx, id))
}
