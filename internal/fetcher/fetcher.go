// Package fetcher downloads and parses sitemaps. Page bodies are fetched by
// internal/acquire instead.
package fetcher

import (
	"context"
	"io"
)

// Fetcher returns the raw body at a URL. The caller closes it.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
