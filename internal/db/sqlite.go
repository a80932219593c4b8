package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied through the DSN so every pooled connection gets
// them, foreign keys included.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
	"_pragma=busy_timeout(5000)",
	"_pragma=synchronous(NORMAL)",
	"_time_format=sqlite",
}

// SQLite opens transactions on a modernc.org/sqlite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + strings.Join(sqlitePragmas, "&")
	} else {
		dsn += "?" + strings.Join(sqlitePragmas, "&")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; a single connection also keeps in-memory
	// databases consistent across statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle for non-transactional readers.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Dialect() Dialect { return DialectSQLite }

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	return &sqlTx{tx: tx}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	return migrateSQLite(ctx, s.db)
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Dialect() Dialect { return DialectSQLite }

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

func (t *sqlTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return eris.Wrapf(err, "sqlite: savepoint %s", name)
}

func (t *sqlTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return eris.Wrapf(err, "sqlite: rollback to savepoint %s", name)
}

func (t *sqlTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return eris.Wrapf(err, "sqlite: release savepoint %s", name)
}

func (t *sqlTx) Commit(_ context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit tx")
}

func (t *sqlTx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback tx")
}

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }
