// Package migrate brings the database schema up to date before the server
// starts serving. Migrations are embedded so the binary is self-contained.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/holte-dev/safetyflash/migrations"
)

// Up applies any pending migrations against the DSN. Goose needs a
// database/sql handle, so this opens its own short-lived connection rather
// than reusing the pgx pool.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
