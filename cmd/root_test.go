package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"crawl", "enrich", "geocode", "reembed", "mark-duplicates", "estimate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "yorimichi", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestRootCommand_LoadsConfigFile(t *testing.T) {
	withConfig(t, nil)
	path := filepath.Join(t.TempDir(), "yorimichi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\nlog:\n  level: info\n"), 0o644))

	prevFile, prevLevel := configFile, logLevel
	t.Cleanup(func() { configFile, logLevel = prevFile, prevLevel })
	configFile, logLevel = path, "debug"

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)

	configFile = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, rootCmd.PersistentPreRunE(rootCmd, nil))
}

func TestCrawlCommand_Flags(t *testing.T) {
	for _, name := range []string{"tier", "scope", "limit", "force", "resume", "dry-run", "sitemaps-file"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), "crawl should have --%s flag", name)
	}
	assert.Equal(t, "0", crawlCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "false", crawlCmd.Flags().Lookup("dry-run").DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"fix", "limit", "test", "resume", "force"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s flag", name)
	}
}

func TestGeocodeCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "resume", "test"} {
		assert.NotNil(t, geocodeCmd.Flags().Lookup(name), "geocode should have --%s flag", name)
	}
}

func TestReembedCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "resume", "test"} {
		assert.NotNil(t, reembedCmd.Flags().Lookup(name), "reembed should have --%s flag", name)
	}
}

func TestEstimateCommand_Flags(t *testing.T) {
	require.NotNil(t, estimateCmd.Flags().Lookup("tier"))
	require.NotNil(t, estimateCmd.Flags().Lookup("scope"))
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestTierAndScope(t *testing.T) {
	withConfig(t, &config.Config{Pipeline: config.PipelineConfig{ModelTier: "economy", TargetScope: "medium"}})

	tier, scope, err := tierAndScope("", "")
	require.NoError(t, err)
	assert.Equal(t, config.TierEconomy, tier)
	assert.Equal(t, config.ScopeMedium, scope)

	tier, scope, err = tierAndScope("premium", "all")
	require.NoError(t, err)
	assert.Equal(t, config.TierPremium, tier)
	assert.Equal(t, config.ScopeAll, scope)

	_, _, err = tierAndScope("gold", "")
	assert.Error(t, err)
	_, _, err = tierAndScope("", "everything")
	assert.Error(t, err)
}

func TestFinishRun(t *testing.T) {
	stats := &model.Stats{Total: 3, Processed: 2, Success: 1}

	var buf bytes.Buffer
	require.NoError(t, finishRun(&buf, "crawl", stats, nil))
	assert.Contains(t, buf.String(), "\n  ")

	buf.Reset()
	require.NoError(t, finishRun(&buf, "crawl", stats, context.Canceled), "an interrupt exits cleanly")
	assert.NotEmpty(t, buf.String())

	buf.Reset()
	err := finishRun(&buf, "enrich", stats, errors.New("store down"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrich run")
	assert.Empty(t, buf.String())

	require.NoError(t, finishRun(&buf, "geocode", nil, nil))
}

func TestInitStore_SQLite(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "yorimichi.db"),
	}})

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	statuses, err := st.LoadStatuses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	args := m.Called(ctx, url)
	if v := args.Get(0); v != nil {
		return io.NopCloser(strings.NewReader(v.(string))), args.Error(1)
	}
	return nil, args.Error(1)
}

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, l := range locs {
		b.WriteString("<url><loc>" + l + "</loc></url>")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func TestSitemapBreakdown(t *testing.T) {
	f := &mockFetcher{}
	f.On("Download", mock.Anything, "https://s/place-sitemap1.xml").
		Return(urlset("https://p/a/", "https://p/b/"), nil)
	f.On("Download", mock.Anything, "https://s/event-sitemap1.xml").
		Return(nil, errors.New("503"))

	got, err := sitemapBreakdown(context.Background(), f, []string{
		"https://s/place-sitemap1.xml",
		"https://s/event-sitemap1.xml",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"place-sitemap1.xml": 2}, got)
}

func TestSitemapBreakdown_NothingReadable(t *testing.T) {
	f := &mockFetcher{}
	f.On("Download", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	_, err := sitemapBreakdown(context.Background(), f, []string{"https://s/a.xml"})
	require.Error(t, err)
}

func TestPrintEstimate(t *testing.T) {
	withConfig(t, &config.Config{
		Pipeline: config.PipelineConfig{SourceBaseURL: "https://s/"},
		Sitemaps: config.SitemapsConfig{High: []string{"place-sitemap1.xml"}},
	})
	f := &mockFetcher{}
	f.On("Download", mock.Anything, "https://s/place-sitemap1.xml").
		Return(urlset("https://p/a/", "https://p/b/", "https://p/c/"), nil)

	var buf bytes.Buffer
	require.NoError(t, printEstimate(context.Background(), &buf, f, config.TierSmart, config.ScopeHigh))
	assert.Contains(t, buf.String(), "CRAWL ESTIMATE")
	assert.Contains(t, buf.String(), "URLs to process: 3")
}
