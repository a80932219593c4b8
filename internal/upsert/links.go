package upsert

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
)

// LinkChanges counts what ReplaceLinks did.
type LinkChanges struct {
	Added   int
	Removed int
}

// ReplaceLinks makes the rows of t matching scope equal to recs. Stored rows
// missing from recs are archived then deleted; new ones are inserted and
// rows present in both are upserted.
func (e *Engine) ReplaceLinks(ctx context.Context, s db.Session, t entity.Table, scope map[string]any, recs []entity.Record) (LinkChanges, error) {
	var changes LinkChanges
	proto, ok := entity.NewRecord(t)
	if !ok {
		return changes, eris.Errorf("upsert: unknown table %s", t.Name)
	}

	stored, err := entity.SelectLike(ctx, s, proto, scope)
	if err != nil {
		return changes, err
	}

	want := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Table().Name != t.Name {
			return changes, eris.Errorf("upsert: %s record passed to %s links", r.Table().Name, t.Name)
		}
		want[keyString(r.KeyValues())] = true
	}

	for _, cur := range stored {
		if want[keyString(cur.KeyValues())] {
			continue
		}
		_, err := e.atomically(ctx, s, func() (Outcome, error) {
			if err := e.ledger.Archive(ctx, s, cur); err != nil {
				return Unchanged, err
			}
			if _, err := entity.Delete(ctx, s, t, cur.KeyValues()...); err != nil {
				return Unchanged, eris.Wrapf(err, "upsert: delete %s %v", t.Name, cur.KeyValues())
			}
			return Updated, nil
		})
		if err != nil {
			return changes, err
		}
		changes.Removed++
	}

	for _, r := range recs {
		out, err := e.Upsert(ctx, s, r)
		if err != nil {
			return changes, err
		}
		if out == Inserted {
			changes.Added++
		}
	}
	return changes, nil
}

func keyString(key []any) string {
	parts := make([]any, len(key))
	for i, k := range key {
		switch v := k.(type) {
		case nil:
			parts[i] = "\x00"
		case *string:
			if v == nil {
				parts[i] = "\x00"
			} else {
				parts[i] = *v
			}
		default:
			parts[i] = v
		}
	}
	return fmt.Sprintf("%q", parts)
}
