package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	ierr "github.com/acctportal/billingcore/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
)`

// Migrations returns the embedded migration file names in apply order
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// MigrationSQL returns the contents of one embedded migration
func MigrationSQL(name string) (string, error) {
	b, err := migrations.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations. Each file runs in its own transaction.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return ierr.WithError(err).
			WithHint("failed to create schema_migrations").
			Mark(ierr.ErrDatabase)
	}

	names, err := Migrations()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	for _, name := range names {
		var applied bool
		if err := db.GetContext(ctx, &applied,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if applied {
			continue
		}

		stmt, err := MigrationSQL(name)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSystem)
		}

		err = db.WithTx(ctx, func(ctx context.Context) error {
			q := db.GetQuerier(ctx)
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return err
			}
			_, err := q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return ierr.WithError(err).
				WithHintf("migration %s failed", name).
				Mark(ierr.ErrDatabase)
		}
		db.logger.Infow("applied migration", "version", name)
	}
	return nil
}
