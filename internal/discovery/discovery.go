// Package discovery enumerates source identifiers (page URLs) from the
// configured sitemaps.
package discovery

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KevinLaRosa/yorimichi-workers/internal/fetcher"
)

const defaultConcurrency = 4

// Enumerator lists page URLs from a set of sitemaps.
type Enumerator struct {
	fetcher     fetcher.Fetcher
	sitemaps    []string
	concurrency int
}

// NewEnumerator creates an Enumerator over sitemaps, listed in priority order.
func NewEnumerator(f fetcher.Fetcher, sitemaps []string) *Enumerator {
	return &Enumerator{fetcher: f, sitemaps: sitemaps, concurrency: defaultConcurrency}
}

// Enumerate fetches every sitemap and returns the union of their page URLs,
// deduplicated with first-seen order kept. A sitemap that fails is logged and
// skipped; the call fails only when every sitemap fails. limit > 0 truncates.
func (e *Enumerator) Enumerate(ctx context.Context, limit int) ([]string, error) {
	if len(e.sitemaps) == 0 {
		return nil, eris.New("discovery: no sitemaps configured")
	}

	results := make([][]string, len(e.sitemaps))
	failed := make([]error, len(e.sitemaps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sm := range e.sitemaps {
		g.Go(func() error {
			locs, err := fetcher.Sitemap(gctx, e.fetcher, sm)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("discovery: sitemap failed, skipping", zap.String("sitemap", sm), zap.Error(err))
				failed[i] = err
				return nil
			}
			zap.L().Info("discovery: sitemap loaded", zap.String("sitemap", sm), zap.Int("urls", len(locs)))
			results[i] = locs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "discovery: enumerate")
	}

	nFailed := 0
	for _, err := range failed {
		if err != nil {
			nFailed++
		}
	}
	if nFailed == len(e.sitemaps) {
		return nil, eris.Wrapf(failed[0], "discovery: all %d sitemaps failed", nFailed)
	}

	var all []string
	for _, locs := range results {
		all = append(all, locs...)
	}
	ids := Dedup(all)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Dedup removes repeated identifiers, keeping the first occurrence. Trailing
// slashes and surrounding whitespace are not significant.
func Dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		key := strings.TrimSuffix(id, "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}
