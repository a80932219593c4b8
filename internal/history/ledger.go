// Package history writes pre-update snapshots of canonical rows into their
// per-table history ledgers.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
)

// HistoryWriteError reports a snapshot that could not be archived. The
// enclosing unit of work must not commit after one.
type HistoryWriteError struct {
	Table string
	Key   []any
	Err   error
}

func (e *HistoryWriteError) Error() string {
	return fmt.Sprintf("history: archive %s %v: %v", e.Table, e.Key, e.Err)
}

func (e *HistoryWriteError) Unwrap() error { return e.Err }

// Ledger appends snapshots to <table>_history.
type Ledger struct {
	clock func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the archived_at source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// New creates a Ledger stamping snapshots with the current UTC time.
func New(opts ...Option) *Ledger {
	l := &Ledger{clock: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Archive appends one immutable copy of snapshot to its table's ledger.
// Exactly one row must be written; anything else is a *HistoryWriteError.
func (l *Ledger) Archive(ctx context.Context, s db.Session, snapshot entity.Record) error {
	t := snapshot.Table()

	ib := s.Dialect().Flavor().NewInsertBuilder()
	ib.InsertInto(t.History()).
		Cols(append(t.Columns(), "archived_at")...).
		Values(append(entity.Values(snapshot), l.clock())...)
	q, args := ib.Build()

	n, err := s.Exec(ctx, q, args...)
	if err != nil {
		return &HistoryWriteError{Table: t.Name, Key: snapshot.KeyValues(), Err: err}
	}
	if n != 1 {
		return &HistoryWriteError{
			Table: t.Name,
			Key:   snapshot.KeyValues(),
			Err:   eris.Errorf("expected 1 archived row, got %d", n),
		}
	}
	return nil
}
