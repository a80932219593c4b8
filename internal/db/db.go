// Package db provides the transactional sessions, dialect helpers and schema
// migrations shared by the canonical procurement store.
package db

import (
	"context"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of pgxpool.Pool used by this package. pgxmock.PgxPoolIface
// satisfies it, which keeps Postgres code testable without a server.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Dialect identifies the SQL backend behind a Session.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Flavor returns the go-sqlbuilder flavor producing this dialect's placeholders.
func (d Dialect) Flavor() sqlbuilder.Flavor {
	if d == DialectPostgres {
		return sqlbuilder.PostgreSQL
	}
	return sqlbuilder.SQLite
}

// RowLocks reports whether SELECT ... FOR UPDATE is available. SQLite
// serializes writers at the transaction level instead.
func (d Dialect) RowLocks() bool {
	return d == DialectPostgres
}

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result. pgx.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Session is the unit-of-work handle passed to every store operation. All
// statements issued through one Session belong to the same transaction.
type Session interface {
	Dialect() Dialect
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// QueryRow returns a row whose Scan reports ErrNoRows when nothing matched.
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}

// Tx is a Session with commit/rollback boundaries.
type Tx interface {
	Session
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Opener starts transactions against one database.
type Opener interface {
	Dialect() Dialect
	Begin(ctx context.Context) (Tx, error)
	Migrate(ctx context.Context) error
	Close()
}
