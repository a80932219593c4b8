// Package testhelpers provides migrated databases for tests: a throwaway
// SQLite file per test, and a shared Postgres container behind the
// integration build tag.
package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/procurement-cli/internal/db"
)

// NewSQLite opens and migrates a SQLite database under t.TempDir.
func NewSQLite(t testing.TB) *db.SQLite {
	t.Helper()
	lite, err := db.OpenSQLite(filepath.Join(t.TempDir(), "procurement.db"))
	require.NoError(t, err)
	t.Cleanup(lite.Close)
	require.NoError(t, lite.Migrate(context.Background()))
	return lite
}

// Begin starts a transaction that is rolled back when the test ends unless
// the test commits it first.
func Begin(t testing.TB, o db.Opener) db.Tx {
	t.Helper()
	tx, err := o.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}
