package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) ([]sitemapEntry, error) {
	t.Helper()
	var entries []sitemapEntry
	err := walkSitemap(context.Background(), strings.NewReader(input), func(e sitemapEntry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func TestWalkSitemap_URLSet(t *testing.T) {
	entries, err := collect(t, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
		<url><loc>https://tokyocheapo.com/place/a/</loc><lastmod>2025-06-01</lastmod></url>
		<url><loc>https://tokyocheapo.com/place/b/</loc></url>
	</urlset>`)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "url", entries[0].XMLName.Local)
	assert.Equal(t, "https://tokyocheapo.com/place/a/", entries[0].Loc)
	assert.Equal(t, "2025-06-01", entries[0].LastMod)
	assert.Equal(t, "https://tokyocheapo.com/place/b/", entries[1].Loc)
}

func TestWalkSitemap_Index(t *testing.T) {
	entries, err := collect(t, `<sitemapindex>
		<sitemap><loc>https://tokyocheapo.com/place-sitemap1.xml</loc></sitemap>
		<sitemap><loc>https://tokyocheapo.com/place-sitemap2.xml</loc></sitemap>
	</sitemapindex>`)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "sitemap", entries[1].XMLName.Local)
	assert.Equal(t, "https://tokyocheapo.com/place-sitemap2.xml", entries[1].Loc)
}

func TestWalkSitemap_IgnoresOtherElements(t *testing.T) {
	entries, err := collect(t, `<urlset><comment>none</comment></urlset>`)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = collect(t, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWalkSitemap_DeclaredCharset(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<urlset><url><loc>https://tokyocheapo.com/place/caf\xe9/</loc></url></urlset>"

	entries, err := collect(t, input)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://tokyocheapo.com/place/café/", entries[0].Loc)
}

func TestWalkSitemap_UnknownCharset(t *testing.T) {
	_, err := collect(t, `<?xml version="1.0" encoding="x-klingon"?><urlset></urlset>`)
	require.Error(t, err)
}

func TestWalkSitemap_Malformed(t *testing.T) {
	entries, err := collect(t, `<urlset><url><loc>https://p/a/</loc></url><url><loc>x</loc></url`)
	require.Error(t, err)
	assert.Len(t, entries, 1, "entries before the error are still visited")
}

func TestWalkSitemap_VisitErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := walkSitemap(context.Background(),
		strings.NewReader(`<urlset><url><loc>a</loc></url><url><loc>b</loc></url></urlset>`),
		func(sitemapEntry) error {
			calls++
			return stop
		})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalkSitemap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := walkSitemap(ctx, strings.NewReader(`<urlset><url><loc>a</loc></url></urlset>`),
		func(sitemapEntry) error {
			t.Fatal("visit must not be called after cancellation")
			return nil
		})
	require.ErrorIs(t, err, context.Canceled)
}
