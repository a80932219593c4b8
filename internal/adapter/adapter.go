// Package adapter defines how source formats are turned into normalized
// releases, and the order in which source files are applied.
package adapter

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/model"
)

// Adapter decodes one source file into releases.
type Adapter interface {
	// Name identifies the format in logs and the run log.
	Name() string
	// Decode streams the releases found in r to out. It returns when r is
	// exhausted, on a fatal format error, or when ctx is canceled.
	Decode(ctx context.Context, r io.Reader, file string, out chan<- model.Release) error
}

// Emit sends rel to out unless ctx is canceled first.
func Emit(ctx context.Context, out chan<- model.Release, rel model.Release) error {
	select {
	case out <- rel:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "adapter: emit canceled")
	}
}

var dateRange = regexp.MustCompile(`_(\d{8})_(\d{8})`)

type datedFile struct {
	name       string
	start, end time.Time
	dated      bool
	revision   bool
}

func parseRange(name string) datedFile {
	base := filepath.Base(name)
	f := datedFile{name: name, revision: strings.Contains(strings.ToLower(base), "revision")}
	m := dateRange.FindStringSubmatch(base)
	if m == nil {
		return f
	}
	start, err1 := time.Parse("20060102", m[1])
	end, err2 := time.Parse("20060102", m[2])
	if err1 != nil || err2 != nil {
		return f
	}
	f.start, f.end, f.dated = start, end, true
	return f
}

// SortByDateRange orders files by the _YYYYMMDD_YYYYMMDD range in their
// base names: start date, then end date, then revision files after the
// originals they revise, then name. Undated files come last, by name. The
// input is not modified.
func SortByDateRange(files []string) []string {
	parsed := make([]datedFile, len(files))
	for i, f := range files {
		parsed[i] = parseRange(f)
	}
	slices.SortStableFunc(parsed, func(a, b datedFile) int {
		switch {
		case a.dated != b.dated:
			if a.dated {
				return -1
			}
			return 1
		case !a.start.Equal(b.start):
			return a.start.Compare(b.start)
		case !a.end.Equal(b.end):
			return a.end.Compare(b.end)
		case a.dated && a.revision != b.revision:
			if a.revision {
				return 1
			}
			return -1
		default:
			return strings.Compare(a.name, b.name)
		}
	})
	out := make([]string, len(parsed))
	for i, f := range parsed {
		out[i] = f.name
	}
	return out
}
