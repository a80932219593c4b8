package ingest

import (
	"maps"
	"slices"

	"github.com/sells-group/procurement-cli/internal/upsert"
)

// TableStats counts outcomes for one table.
type TableStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
}

// Stats counts what processing one or more releases wrote.
type Stats struct {
	Tables       map[string]TableStats `json:"tables"`
	Backfilled   int                   `json:"backfilled"`
	AliasesAdded int                   `json:"aliases_added"`
	Warnings     int                   `json:"warnings"`
}

func (s *Stats) table(name string) TableStats {
	if s.Tables == nil {
		s.Tables = make(map[string]TableStats)
	}
	return s.Tables[name]
}

func (s *Stats) record(name string, out upsert.Outcome) {
	ts := s.table(name)
	switch out {
	case upsert.Inserted:
		ts.Inserted++
	case upsert.Updated:
		ts.Updated++
	default:
		ts.Unchanged++
	}
	s.Tables[name] = ts
}

func (s *Stats) removed(name string, n int) {
	ts := s.table(name)
	ts.Removed += n
	s.Tables[name] = ts
}

func (s *Stats) skipped(name string) {
	ts := s.table(name)
	ts.Skipped++
	s.Tables[name] = ts
	s.Warnings++
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	for name, ts := range o.Tables {
		cur := s.table(name)
		cur.Inserted += ts.Inserted
		cur.Updated += ts.Updated
		cur.Unchanged += ts.Unchanged
		cur.Removed += ts.Removed
		cur.Skipped += ts.Skipped
		s.Tables[name] = cur
	}
	s.Backfilled += o.Backfilled
	s.AliasesAdded += o.AliasesAdded
	s.Warnings += o.Warnings
}

// TableNames returns the tables with counts, sorted.
func (s Stats) TableNames() []string {
	return slices.Sorted(maps.Keys(s.Tables))
}
