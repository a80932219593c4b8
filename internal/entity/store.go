package entity

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/db"
)

// Find loads the row with the given natural key. It returns nil, nil when no
// row matches.
func Find[T any, P Ptr[T]](ctx context.Context, s db.Session, key ...any) (*T, error) {
	return find[T, P](ctx, s, false, key)
}

// FindForUpdate is Find with a row lock held until the session ends. SQLite
// has no row locks; its write transaction already serializes writers.
func FindForUpdate[T any, P Ptr[T]](ctx context.Context, s db.Session, key ...any) (*T, error) {
	return find[T, P](ctx, s, true, key)
}

func find[T any, P Ptr[T]](ctx context.Context, s db.Session, lock bool, key []any) (*T, error) {
	var v T
	ok, err := Load(ctx, s, P(&v), lock, key...)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Load scans the row with the given natural key into dst and reports whether
// it was found.
func Load(ctx context.Context, s db.Session, dst Record, lock bool, key ...any) (bool, error) {
	t := dst.Table()
	if len(key) != len(t.Key) {
		return false, eris.Errorf("entity: %s expects %d key values, got %d", t.Name, len(t.Key), len(key))
	}

	sb := s.Dialect().Flavor().NewSelectBuilder()
	sb.Select(t.Columns()...).From(t.Name)
	sb.Where(keyConds(&sb.Cond, t.Key, key)...)
	if lock && s.Dialect().RowLocks() {
		sb.ForUpdate()
	}
	q, args := sb.Build()

	err := s.QueryRow(ctx, q, args...).Scan(dst.ScanTargets()...)
	if errors.Is(err, db.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "entity: find %s", t.Name)
	}
	return true, nil
}

// Exists reports whether a row with the given natural key exists.
func Exists(ctx context.Context, s db.Session, t Table, key ...any) (bool, error) {
	if len(key) != len(t.Key) {
		return false, eris.Errorf("entity: %s expects %d key values, got %d", t.Name, len(t.Key), len(key))
	}
	sb := s.Dialect().Flavor().NewSelectBuilder()
	sb.Select("1").From(t.Name)
	sb.Where(keyConds(&sb.Cond, t.Key, key)...)
	q, args := sb.Build()

	var one int
	err := s.QueryRow(ctx, q, args...).Scan(&one)
	if errors.Is(err, db.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "entity: exists %s", t.Name)
	}
	return true, nil
}

// Select returns every row of T matching the column equalities in where,
// ordered by natural key.
func Select[T any, P Ptr[T]](ctx context.Context, s db.Session, where map[string]any) ([]T, error) {
	var proto T
	recs, err := SelectLike(ctx, s, P(&proto), where)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r.(P))
	}
	return out, nil
}

// SelectLike is Select for a record type known only at run time.
func SelectLike(ctx context.Context, s db.Session, proto Record, where map[string]any) ([]Record, error) {
	t := proto.Table()
	cols, vals := sortedColumns(where)

	sb := s.Dialect().Flavor().NewSelectBuilder()
	sb.Select(t.Columns()...).From(t.Name)
	if len(cols) > 0 {
		sb.Where(keyConds(&sb.Cond, cols, vals)...)
	}
	sb.OrderBy(t.Key...)
	q, args := sb.Build()

	rows, err := s.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: select %s", t.Name)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := NewLike(proto)
		if err := rows.Scan(r.ScanTargets()...); err != nil {
			return nil, eris.Wrapf(err, "entity: scan %s", t.Name)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "entity: iterate %s", t.Name)
}

// Insert writes rec as a new row.
func Insert(ctx context.Context, s db.Session, rec Record) error {
	t := rec.Table()
	ib := s.Dialect().Flavor().NewInsertBuilder()
	ib.InsertInto(t.Name).Cols(t.Columns()...).Values(Values(rec)...)
	q, args := ib.Build()
	_, err := s.Exec(ctx, q, args...)
	return err
}

// Update overwrites every value column of the row matching rec's natural
// key, nil fields included, and returns the number of rows affected.
func Update(ctx context.Context, s db.Session, rec Record) (int64, error) {
	t := rec.Table()
	fields := rec.FieldValues()
	cols := make(map[string]any, len(fields))
	for i, c := range t.Values {
		cols[c] = fields[i]
	}
	return UpdateColumns(ctx, s, t, rec.KeyValues(), cols)
}

// UpdateColumns sets only the given columns on the row with the given key.
func UpdateColumns(ctx context.Context, s db.Session, t Table, key []any, cols map[string]any) (int64, error) {
	if len(cols) == 0 {
		return 0, nil
	}
	names, vals := sortedColumns(cols)
	for _, n := range names {
		if !slices.Contains(t.Values, n) {
			return 0, eris.Errorf("entity: %s has no value column %q", t.Name, n)
		}
	}

	ub := s.Dialect().Flavor().NewUpdateBuilder()
	ub.Update(t.Name)
	assigns := make([]string, len(names))
	for i, n := range names {
		assigns[i] = ub.Assign(n, vals[i])
	}
	ub.Set(assigns...)
	ub.Where(keyConds(&ub.Cond, t.Key, key)...)
	q, args := ub.Build()
	return s.Exec(ctx, q, args...)
}

// Delete removes the row with the given natural key.
func Delete(ctx context.Context, s db.Session, t Table, key ...any) (int64, error) {
	dlb := s.Dialect().Flavor().NewDeleteBuilder()
	dlb.DeleteFrom(t.Name)
	dlb.Where(keyConds(&dlb.Cond, t.Key, key)...)
	q, args := dlb.Build()
	return s.Exec(ctx, q, args...)
}

// Count returns the number of rows in t.
func Count(ctx context.Context, s db.Session, t Table) (int64, error) {
	return countRows(ctx, s, t.Name)
}

// CountHistory returns the number of archived snapshots for t.
func CountHistory(ctx context.Context, s db.Session, t Table) (int64, error) {
	return countRows(ctx, s, t.History())
}

func countRows(ctx context.Context, s db.Session, table string) (int64, error) {
	sb := s.Dialect().Flavor().NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	q, args := sb.Build()
	var n int64
	if err := s.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "entity: count %s", table)
	}
	return n, nil
}

// Snapshot is one archived version of a row.
type Snapshot[T any] struct {
	Row        T
	ArchivedAt time.Time
}

// ListHistory returns the archived versions of the row with the given key,
// oldest first.
func ListHistory[T any, P Ptr[T]](ctx context.Context, s db.Session, key ...any) ([]Snapshot[T], error) {
	var proto T
	t := P(&proto).Table()

	sb := s.Dialect().Flavor().NewSelectBuilder()
	sb.Select(append(t.Columns(), "archived_at")...).From(t.History())
	sb.Where(keyConds(&sb.Cond, t.Key, key)...)
	sb.OrderBy("history_id")
	q, args := sb.Build()

	rows, err := s.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: list %s", t.History())
	}
	defer rows.Close()

	var out []Snapshot[T]
	for rows.Next() {
		var snap Snapshot[T]
		targets := append(P(&snap.Row).ScanTargets(), &snap.ArchivedAt)
		if err := rows.Scan(targets...); err != nil {
			return nil, eris.Wrapf(err, "entity: scan %s", t.History())
		}
		out = append(out, snap)
	}
	return out, eris.Wrapf(rows.Err(), "entity: iterate %s", t.History())
}

// keyConds builds null-safe equality predicates: a nil value matches IS NULL.
func keyConds(c *sqlbuilder.Cond, cols []string, vals []any) []string {
	exprs := make([]string, len(cols))
	for i, col := range cols {
		if isNil(vals[i]) {
			exprs[i] = c.IsNull(col)
		} else {
			exprs[i] = c.Equal(col, vals[i])
		}
	}
	return exprs
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func sortedColumns(m map[string]any) ([]string, []any) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	vals := make([]any, len(names))
	for i, n := range names {
		vals[i] = m[n]
	}
	return names, vals
}
