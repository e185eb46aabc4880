package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// charsetReader decodes sitemaps declared in a non-UTF-8 encoding, using the
// WHATWG encoding labels.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// walkSitemap decodes the <url> and <sitemap> entries of r in document order
// and hands each to visit. It stops at the first error returned by visit or
// when ctx is done.
func walkSitemap(ctx context.Context, r io.Reader, visit func(sitemapEntry) error) error {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "fetcher: sitemap decode cancelled")
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "fetcher: read sitemap token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || (se.Name.Local != "url" && se.Name.Local != "sitemap") {
			continue
		}

		var entry sitemapEntry
		if err := dec.DecodeElement(&entry, &se); err != nil {
			return eris.Wrapf(err, "fetcher: decode <%s>", se.Name.Local)
		}
		if err := visit(entry); err != nil {
			return err
		}
	}
}
