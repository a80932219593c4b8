// Package fetcher downloads source files and stream-decodes the JSON and XML
// formats they come in.
package fetcher

import (
	"context"
	"io"
)

// Downloader fetches a remote file.
type Downloader interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
