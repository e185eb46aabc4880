package fetcher

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"
)

// sitemapEntry is a <url> entry of a urlset or a <sitemap> entry of an index.
type sitemapEntry struct {
	XMLName xml.Name
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Sitemap downloads a sitemap and returns its page locations in document
// order. Sitemap index entries are expanded recursively.
func Sitemap(ctx context.Context, f Fetcher, sitemapURL string) ([]string, error) {
	body, err := f.Download(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	var (
		locs   []string
		nested []string
	)

	err = walkSitemap(ctx, body, func(e sitemapEntry) error {
		loc := strings.TrimSpace(e.Loc)
		switch {
		case loc == "":
		case e.XMLName.Local == "sitemap":
			nested = append(nested, loc)
		default:
			locs = append(locs, loc)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse sitemap %s", sitemapURL)
	}

	for _, child := range nested {
		childLocs, err := Sitemap(ctx, f, child)
		if err != nil {
			return nil, err
		}
		locs = append(locs, childLocs...)
	}
	return locs, nil
}
