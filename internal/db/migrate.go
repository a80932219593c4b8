package db

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// migrationLockID guards concurrent Postgres migration runs.
const migrationLockID = 4242017

// migrationTarget abstracts the two drivers for the shared apply loop.
type migrationTarget interface {
	exec(ctx context.Context, sql string, args ...any) error
	applied(ctx context.Context) (map[string]bool, error)
	recordSQL() string
}

// MigrationFiles returns the sorted migration file names for a dialect.
func MigrationFiles(d Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations/"+string(d))
	if err != nil {
		return nil, eris.Wrapf(err, "migrate: read %s migration dir", d)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// migratePostgres applies pending Postgres migrations under an advisory lock.
func migratePostgres(ctx context.Context, pool Pool) error {
	log := zap.L().With(zap.String("component", "db.migrate"), zap.String("dialect", string(DialectPostgres)))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "migrate: acquire advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("migrate: failed to release advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "migrate: ensure migration table")
	}

	return applyMigrations(ctx, log, DialectPostgres, pgTarget{pool: pool})
}

// migrateSQLite applies pending SQLite migrations.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	log := zap.L().With(zap.String("component", "db.migrate"), zap.String("dialect", string(DialectSQLite)))

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			filename   TEXT NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return eris.Wrap(err, "migrate: ensure migration table")
	}

	return applyMigrations(ctx, log, DialectSQLite, sqliteTarget{db: db})
}

func applyMigrations(ctx context.Context, log *zap.Logger, d Dialect, target migrationTarget) error {
	names, err := MigrationFiles(d)
	if err != nil {
		return err
	}

	applied, err := target.applied(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + string(d) + "/" + name)
		if err != nil {
			return eris.Wrapf(err, "migrate: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if err := target.exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "migrate: apply migration %s", name)
		}
		if err := target.exec(ctx, target.recordSQL(), name); err != nil {
			return eris.Wrapf(err, "migrate: record migration %s", name)
		}

		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

type pgTarget struct {
	pool Pool
}

func (t pgTarget) exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.pool.Exec(ctx, sql, args...)
	return err
}

func (t pgTarget) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := t.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: query applied migrations")
	}
	defer rows.Close()
	return scanApplied(rows)
}

func (t pgTarget) recordSQL() string {
	return "INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())"
}

type sqliteTarget struct {
	db *sql.DB
}

func (t sqliteTarget) exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.db.ExecContext(ctx, sql, args...)
	return err
}

func (t sqliteTarget) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := t.db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: query applied migrations")
	}
	r := sqlRows{rows: rows}
	defer r.Close()
	return scanApplied(r)
}

func (t sqliteTarget) recordSQL() string {
	return "INSERT INTO schema_migrations (filename, applied_at) VALUES (?, CURRENT_TIMESTAMP)"
}

func scanApplied(rows Rows) (map[string]bool, error) {
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "migrate: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
