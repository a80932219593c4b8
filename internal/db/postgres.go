package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Postgres opens transactions on a pgx pool.
type Postgres struct {
	pool    Pool
	closeFn func()
}

// OpenPostgres creates a pgxpool-backed Postgres opener and verifies the
// connection.
func OpenPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgres wraps an existing pool, e.g. a pgxmock pool in tests.
func NewPostgres(pool Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool exposes the underlying pool for non-transactional readers.
func (p *Postgres) Pool() Pool { return p.pool }

func (p *Postgres) Dialect() Dialect { return DialectPostgres }

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, p.pool)
}

func (p *Postgres) Close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Dialect() Dialect { return DialectPostgres }

func (t *pgTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgRow{row: t.tx.QueryRow(ctx, query, args...)}
}

func (t *pgTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return t.tx.Query(ctx, query, args...)
}

func (t *pgTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return eris.Wrapf(err, "postgres: savepoint %s", name)
}

func (t *pgTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return eris.Wrapf(err, "postgres: rollback to savepoint %s", name)
}

func (t *pgTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return eris.Wrapf(err, "postgres: release savepoint %s", name)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit tx")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback tx")
}

type pgRow struct {
	row pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
