// Package normalize converts raw source values into the canonical shapes
// stored by the engine: optional timestamps, sanitized text, parsed numbers
// and legacy code categories.
package normalize

import (
	"strings"
	"time"
)

// dateLayouts is tried in order; the first layout that parses wins.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Date parses raw into a UTC timestamp. Zone-less inputs are read as UTC.
// Unparseable or empty input yields nil rather than an error.
func Date(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
