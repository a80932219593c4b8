package source

import (
	"context"
	"io"

	"github.com/sells-group/procurement-cli/internal/fetcher"
)

// URLs downloads a fixed list of published files.
type URLs struct {
	urls       []string
	downloader fetcher.Downloader
}

// NewURLs creates a URL source downloading through d.
func NewURLs(urls []string, d fetcher.Downloader) *URLs {
	return &URLs{urls: append([]string(nil), urls...), downloader: d}
}

// List returns the configured URLs.
func (u *URLs) List(_ context.Context) ([]string, error) {
	return append([]string(nil), u.urls...), nil
}

// Open downloads url.
func (u *URLs) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return u.downloader.Download(ctx, url)
}
