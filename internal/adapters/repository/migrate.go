package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// gooseDialect maps the store dialect onto the goose one.
func (d dialect) gooseDialect() database.Dialect {
	if d == dialectPostgres {
		return database.DialectPostgres
	}
	return database.DialectSQLite3
}

// applyMigrations brings db up to the newest migration in migrationFS.
// Applied versions are tracked by goose, so a reopen is a no-op.
func applyMigrations(ctx context.Context, db *sql.DB, d dialect, migrationFS fs.FS) error {
	provider, err := goose.NewProvider(d.gooseDialect(), db, migrationFS)
	if err != nil {
		return fmt.Errorf("setting up migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

