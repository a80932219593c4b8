// Package upsert implements insert-or-update with history capture for every
// canonical table.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/history"
)

// Outcome reports what a write did.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ReferentialError is a write rejected because a referenced parent row is
// missing.
type ReferentialError struct {
	Table string
	Key   []any
	Err   error
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("upsert: %s %v references a missing row: %v", e.Table, e.Key, e.Err)
}

func (e *ReferentialError) Unwrap() error { return e.Err }

// BackfillFunc creates whatever parent row a failed write was missing.
type BackfillFunc func(ctx context.Context, s db.Session) error

type options struct {
	backfill BackfillFunc
}

// Option configures a single Upsert call.
type Option func(*options)

// WithBackfill retries a write once after fn when it fails with a
// ReferentialError.
func WithBackfill(fn BackfillFunc) Option {
	return func(o *options) { o.backfill = fn }
}

// Engine performs archive-then-write upserts inside the caller's session.
type Engine struct {
	ledger *history.Ledger
	seq    atomic.Uint64
}

// New creates an Engine archiving through ledger.
func New(ledger *history.Ledger) *Engine {
	if ledger == nil {
		ledger = history.New()
	}
	return &Engine{ledger: ledger}
}

// Upsert inserts rec, or archives the stored row and overwrites every value
// column with rec's (nil fields become NULL). Key-only rows that already
// exist are left alone.
func (e *Engine) Upsert(ctx context.Context, s db.Session, rec entity.Record, opts ...Option) (Outcome, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	out, err := e.atomically(ctx, s, func() (Outcome, error) { return e.write(ctx, s, rec) })

	var ref *ReferentialError
	if o.backfill == nil || !errors.As(err, &ref) {
		return out, err
	}
	if err := o.backfill(ctx, s); err != nil {
		return Unchanged, eris.Wrapf(err, "upsert: backfill for %s", rec.Table().Name)
	}
	return e.atomically(ctx, s, func() (Outcome, error) { return e.write(ctx, s, rec) })
}

func (e *Engine) write(ctx context.Context, s db.Session, rec entity.Record) (Outcome, error) {
	t := rec.Table()
	cur := entity.NewLike(rec)
	found, err := entity.Load(ctx, s, cur, true, rec.KeyValues()...)
	if err != nil {
		return Unchanged, err
	}

	if !found {
		if err := entity.Insert(ctx, s, rec); err != nil {
			return Unchanged, classify(t, rec.KeyValues(), err)
		}
		return Inserted, nil
	}
	if len(t.Values) == 0 {
		return Unchanged, nil
	}

	if err := e.ledger.Archive(ctx, s, cur); err != nil {
		return Unchanged, err
	}
	if _, err := entity.Update(ctx, s, rec); err != nil {
		return Unchanged, classify(t, rec.KeyValues(), err)
	}
	return Updated, nil
}

// InsertIfAbsent inserts rec unless its natural key is already stored.
// Nothing is archived since nothing is overwritten.
func (e *Engine) InsertIfAbsent(ctx context.Context, s db.Session, rec entity.Record) (Outcome, error) {
	return e.atomically(ctx, s, func() (Outcome, error) {
		t := rec.Table()
		ok, err := entity.Exists(ctx, s, t, rec.KeyValues()...)
		if err != nil || ok {
			return Unchanged, err
		}
		if err := entity.Insert(ctx, s, rec); err != nil {
			return Unchanged, classify(t, rec.KeyValues(), err)
		}
		return Inserted, nil
	})
}

// UpdateColumns archives the stored row then sets only cols on it. It
// reports false, writing nothing, when the key is not stored.
func (e *Engine) UpdateColumns(ctx context.Context, s db.Session, t entity.Table, key []any, cols map[string]any) (bool, error) {
	cur, ok := entity.NewRecord(t)
	if !ok {
		return false, eris.Errorf("upsert: unknown table %s", t.Name)
	}
	out, err := e.atomically(ctx, s, func() (Outcome, error) {
		found, err := entity.Load(ctx, s, cur, true, key...)
		if err != nil || !found {
			return Unchanged, err
		}
		if err := e.ledger.Archive(ctx, s, cur); err != nil {
			return Unchanged, err
		}
		if _, err := entity.UpdateColumns(ctx, s, t, key, cols); err != nil {
			return Unchanged, classify(t, key, err)
		}
		return Updated, nil
	})
	return out == Updated, err
}

// atomically runs fn inside a savepoint so that a failed write leaves
// neither its snapshot nor a partial row behind.
func (e *Engine) atomically(ctx context.Context, s db.Session, fn func() (Outcome, error)) (Outcome, error) {
	sp := fmt.Sprintf("upsert_%d", e.seq.Add(1))
	if err := s.Savepoint(ctx, sp); err != nil {
		return Unchanged, err
	}
	out, err := fn()
	if err != nil {
		if rbErr := s.RollbackTo(ctx, sp); rbErr != nil {
			return Unchanged, eris.Wrap(rbErr, err.Error())
		}
		if relErr := s.Release(ctx, sp); relErr != nil {
			return Unchanged, eris.Wrap(relErr, err.Error())
		}
		return Unchanged, err
	}
	if err := s.Release(ctx, sp); err != nil {
		return Unchanged, err
	}
	return out, nil
}

func classify(t entity.Table, key []any, err error) error {
	if db.IsForeignKeyViolation(err) {
		return &ReferentialError{Table: t.Name, Key: key, Err: err}
	}
	return eris.Wrapf(err, "upsert: write %s %v", t.Name, key)
}
