// Package source lists and opens the input files of an ingest run: a local
// directory, an S3 prefix or a fixed list of URLs.
package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// Source enumerates input files and opens them by name.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Dir reads files matching a glob pattern in a local directory.
type Dir struct {
	Root    string
	Pattern string
}

// NewDir creates a Dir source. An empty pattern matches every file.
func NewDir(root, pattern string) *Dir {
	if pattern == "" {
		pattern = "*"
	}
	return &Dir{Root: root, Pattern: pattern}
}

// List returns matching regular files, sorted by name.
func (d *Dir) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.Root, d.Pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "source: glob %s", d.Pattern)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, eris.Wrapf(err, "source: stat %s", m)
		}
		if info.Mode().IsRegular() {
			names = append(names, m)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens a file returned by List.
func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", name)
	}
	return f, nil
}

// Files is a fixed list of local paths, as given on the command line.
type Files []string

// List returns the paths unchanged.
func (f Files) List(_ context.Context) ([]string, error) {
	return append([]string(nil), f...), nil
}

// Open opens a local path.
func (f Files) Open(_ context.Context, name string) (io.ReadCloser, error) {
	fh, err := os.Open(name)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", name)
	}
	return fh, nil
}
