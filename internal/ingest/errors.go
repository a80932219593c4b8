package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/history"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

var (
	// ErrParseSkip marks a unit that cannot be keyed, such as one without an
	// ocid.
	ErrParseSkip = eris.New("ingest: unit has no usable natural key")
	// ErrNoQualifyingItem marks a release outside the allow-list, or a
	// supplement whose release was never stored.
	ErrNoQualifyingItem = eris.New("ingest: no qualifying item")
	// ErrMissingParty marks a bid whose party is unknown. The bid is
	// skipped; the unit continues.
	ErrMissingParty = eris.New("ingest: bid references unknown party")
)

// PersistenceError is a database failure that aborts the current unit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Class labels an outcome for logs and run metadata.
type Class string

const (
	ClassOK               Class = "ok"
	ClassParseSkip        Class = "parse_skip"
	ClassNoQualifyingItem Class = "no_qualifying_item"
	ClassMissingParty     Class = "missing_party"
	ClassReferentialGap   Class = "referential_gap"
	ClassPersistence      Class = "persistence_failure"
	ClassHistoryWrite     Class = "history_write_failure"
	ClassCanceled         Class = "canceled"
)

// Classify maps an error returned for a unit to its class.
func Classify(err error) Class {
	var (
		hwe *history.HistoryWriteError
		ref *upsert.ReferentialError
	)
	switch {
	case err == nil:
		return ClassOK
	case errors.As(err, &hwe):
		return ClassHistoryWrite
	case errors.Is(err, ErrParseSkip):
		return ClassParseSkip
	case errors.Is(err, ErrNoQualifyingItem):
		return ClassNoQualifyingItem
	case errors.Is(err, ErrMissingParty):
		return ClassMissingParty
	case errors.As(err, &ref):
		return ClassReferentialGap
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassPersistence
	}
}

// Skipped reports whether the class is an expected, logged skip rather
// than a failure.
func (c Class) Skipped() bool {
	return c == ClassParseSkip || c == ClassNoQualifyingItem
}

// Fatal reports whether the class must fail the run as a whole once the
// remaining units are done.
func (c Class) Fatal() bool {
	return c == ClassHistoryWrite
}
