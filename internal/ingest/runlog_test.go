package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/testhelpers"
)

func newRunLog(t *testing.T) *RunLog {
	t.Helper()
	l := NewRunLog(testhelpers.NewSQLite(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return l
}

func TestRunLog_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l := newRunLog(t)

	last, err := l.LastSuccess(ctx, "seao")
	require.NoError(t, err)
	assert.Nil(t, last)

	first, err := l.Start(ctx, "seao")
	require.NoError(t, err)
	sum := &Summary{Units: 3, OK: 2, Skipped: 1, ByClass: map[Class]int{ClassOK: 2, ClassParseSkip: 1}}
	require.NoError(t, l.Complete(ctx, first, sum))

	second, err := l.Start(ctx, "seao")
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, second, "boom", nil))

	last, err = l.LastSuccess(ctx, "seao")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC), *last)

	entries, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Nil(t, entries[0].Metadata)

	assert.Equal(t, first, entries[1].ID)
	assert.Equal(t, StatusComplete, entries[1].Status)
	assert.EqualValues(t, 2, entries[1].UnitsOK)
	assert.EqualValues(t, 1, entries[1].UnitsSkipped)
	require.NotNil(t, entries[1].CompletedAt)
	require.NotNil(t, entries[1].Metadata)
	assert.Equal(t, 1, entries[1].Metadata.ByClass[ClassParseSkip])
}

func TestRunLog_FinishUnknownRun(t *testing.T) {
	err := newRunLog(t).Complete(context.Background(), 42, &Summary{})
	assert.ErrorContains(t, err, "run 42 not found")
}

func TestRunLog_Files(t *testing.T) {
	ctx := context.Background()
	l := newRunLog(t)

	runID, err := l.Start(ctx, "ocds")
	require.NoError(t, err)

	done, err := l.FileDone(ctx, "ocds", "2021-01-01_2021-01-31.json")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, l.MarkFile(ctx, "ocds", "2021-01-01_2021-01-31.json", runID, 10))
	require.NoError(t, l.MarkFile(ctx, "ocds", "2021-01-01_2021-01-31.json", runID, 12))

	done, err = l.FileDone(ctx, "ocds", "2021-01-01_2021-01-31.json")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = l.FileDone(ctx, "seao", "2021-01-01_2021-01-31.json")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRunLog_Postgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewRunLog(db.NewPostgres(mock))
	l.now = func() time.Time { return started }

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO ingest_runs \(source, status, started_at\) VALUES \(\$1, \$2, \$3\) RETURNING id`).
		WithArgs("legacy", StatusRunning, started).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT started_at FROM ingest_runs WHERE source = \$1 AND status = \$2`).
		WithArgs("legacy", StatusComplete).
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(started))
	mock.ExpectCommit()

	ctx := context.Background()
	id, err := l.Start(ctx, "legacy")
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)

	last, err := l.LastSuccess(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, started.Equal(*last))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_PostgresBeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(assert.AnError)

	_, err = NewRunLog(db.NewPostgres(mock)).Start(context.Background(), "legacy")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
