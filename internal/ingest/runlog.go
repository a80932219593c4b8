package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/db"
)

// Run statuses stored in ingest_runs.status.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// RunEntry represents a row in ingest_runs.
type RunEntry struct {
	ID           int64      `json:"id"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UnitsOK      int64      `json:"units_ok"`
	UnitsSkipped int64      `json:"units_skipped"`
	UnitsFailed  int64      `json:"units_failed"`
	Error        string     `json:"error,omitempty"`
	Metadata     *Summary   `json:"metadata,omitempty"`
}

// RunLog provides read/write access to ingest_runs and ingest_files. Every
// call runs in its own short transaction, never inside a unit's.
type RunLog struct {
	opener db.Opener
	now    func() time.Time
}

// NewRunLog creates a RunLog on the given database.
func NewRunLog(opener db.Opener) *RunLog {
	return &RunLog{opener: opener, now: func() time.Time { return time.Now().UTC() }}
}

func (l *RunLog) inTx(ctx context.Context, op string, fn func(s db.Session) error) error {
	tx, err := l.opener.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "runlog: %s: begin", op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "runlog: %s", op)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "runlog: %s: commit", op)
	}
	return nil
}

func (l *RunLog) flavor() sqlbuilder.Flavor { return l.opener.Dialect().Flavor() }

// LastSuccess returns the started_at time of the most recent complete run of
// source, or nil if it never completed.
func (l *RunLog) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	sb := l.flavor().NewSelectBuilder()
	sb.Select("started_at").From("ingest_runs")
	sb.Where(sb.Equal("source", source), sb.Equal("status", StatusComplete))
	sb.OrderBy("started_at DESC", "id DESC")
	sb.SQL("LIMIT 1")
	q, args := sb.Build()

	var out *time.Time
	err := l.inTx(ctx, "last success for "+source, func(s db.Session) error {
		var t time.Time
		if err := s.QueryRow(ctx, q, args...).Scan(&t); err != nil {
			if errors.Is(err, db.ErrNoRows) {
				return nil
			}
			return err
		}
		t = t.UTC()
		out = &t
		return nil
	})
	return out, err
}

// Start records the beginning of a run and returns its ID.
func (l *RunLog) Start(ctx context.Context, source string) (int64, error) {
	ib := l.flavor().NewInsertBuilder()
	ib.InsertInto("ingest_runs").Cols("source", "status", "started_at")
	ib.Values(source, StatusRunning, l.now())
	q, args := ib.Build()
	q += " RETURNING id"

	var id int64
	err := l.inTx(ctx, "start run for "+source, func(s db.Session) error {
		return s.QueryRow(ctx, q, args...).Scan(&id)
	})
	return id, err
}

// Complete marks a run as successfully completed with its summary.
func (l *RunLog) Complete(ctx context.Context, runID int64, sum *Summary) error {
	return l.finish(ctx, runID, StatusComplete, "", sum)
}

// Fail marks a run as failed with an error message. sum may be nil.
func (l *RunLog) Fail(ctx context.Context, runID int64, errMsg string, sum *Summary) error {
	return l.finish(ctx, runID, StatusFailed, errMsg, sum)
}

func (l *RunLog) finish(ctx context.Context, runID int64, status, errMsg string, sum *Summary) error {
	var (
		meta                *string
		ok, skipped, failed int
	)
	if sum != nil {
		data, err := json.Marshal(sum)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal metadata")
		}
		m := string(data)
		meta = &m
		ok, skipped, failed = sum.OK, sum.Skipped, sum.Failed
	}
	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}

	ub := l.flavor().NewUpdateBuilder()
	ub.Update("ingest_runs").Set(
		ub.Assign("status", status),
		ub.Assign("completed_at", l.now()),
		ub.Assign("units_ok", ok),
		ub.Assign("units_skipped", skipped),
		ub.Assign("units_failed", failed),
		ub.Assign("error", errCol),
		ub.Assign("metadata", meta),
	)
	ub.Where(ub.Equal("id", runID))
	q, args := ub.Build()

	return l.inTx(ctx, status+" run", func(s db.Session) error {
		n, err := s.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if n != 1 {
			return eris.Errorf("run %d not found", runID)
		}
		return nil
	})
}

// ListAll returns all run entries, most recent first.
func (l *RunLog) ListAll(ctx context.Context) ([]RunEntry, error) {
	sb := l.flavor().NewSelectBuilder()
	sb.Select("id", "source", "status", "started_at", "completed_at",
		"units_ok", "units_skipped", "units_failed", "error", "metadata")
	sb.From("ingest_runs").OrderBy("started_at DESC", "id DESC")
	q, args := sb.Build()

	var entries []RunEntry
	err := l.inTx(ctx, "list all", func(s db.Session) error {
		rows, err := s.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e           RunEntry
				completedAt *time.Time
				errStr      *string
				meta        *string
			)
			if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.StartedAt, &completedAt,
				&e.UnitsOK, &e.UnitsSkipped, &e.UnitsFailed, &errStr, &meta); err != nil {
				return eris.Wrap(err, "scan entry")
			}
			e.StartedAt = e.StartedAt.UTC()
			if completedAt != nil {
				t := completedAt.UTC()
				e.CompletedAt = &t
			}
			if errStr != nil {
				e.Error = *errStr
			}
			if meta != nil && *meta != "" {
				var sum Summary
				if json.Unmarshal([]byte(*meta), &sum) == nil {
					e.Metadata = &sum
				}
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// MarkFile checkpoints file as fully processed by run runID.
func (l *RunLog) MarkFile(ctx context.Context, source, file string, runID int64, units int) error {
	ib := l.flavor().NewInsertBuilder()
	ib.InsertInto("ingest_files").Cols("source", "file", "run_id", "units", "completed_at")
	ib.Values(source, file, runID, units, l.now())
	ib.SQL("ON CONFLICT (source, file) DO UPDATE SET run_id = excluded.run_id, units = excluded.units, completed_at = excluded.completed_at")
	q, args := ib.Build()

	return l.inTx(ctx, "mark file "+file, func(s db.Session) error {
		_, err := s.Exec(ctx, q, args...)
		return err
	})
}

// FileDone reports whether file has a checkpoint for source.
func (l *RunLog) FileDone(ctx context.Context, source, file string) (bool, error) {
	sb := l.flavor().NewSelectBuilder()
	sb.Select("COUNT(*)").From("ingest_files")
	sb.Where(sb.Equal("source", source), sb.Equal("file", file))
	q, args := sb.Build()

	var n int64
	err := l.inTx(ctx, "check file "+file, func(s db.Session) error {
		return s.QueryRow(ctx, q, args...).Scan(&n)
	})
	return n > 0, err
}
