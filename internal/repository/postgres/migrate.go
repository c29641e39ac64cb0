package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"voicebroker/pkg/errors"
	"voicebroker/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies embedded SQL files in name order, each at most once.
// Applied files are recorded in schema_migrations. Forward-only.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	return runMigrations(ctx, db, sub)
}

func runMigrations(ctx context.Context, db *sqlx.DB, migrations fs.FS) error {
	log := logger.Get().With("component", "migrations")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	var done []string
	if err := db.SelectContext(ctx, &done, `SELECT version FROM schema_migrations`); err != nil {
		return errors.Wrap(err, "load applied migrations")
	}
	applied := make(map[string]bool, len(done))
	for _, v := range done {
		applied[v] = true
	}

	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return errors.Wrap(err, "read migrations dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}

		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin migration %s", name)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "execute migration %s", name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record migration %s", name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %s", name)
		}

		log.Infow("Applied migration", "file", name)
	}

	return nil
}
