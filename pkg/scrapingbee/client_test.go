package scrapingbee

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_QueryParameters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "https://tokyocheapo.com/place/a/", q.Get("url"))
		assert.Equal(t, "true", q.Get("render_js"))
		assert.Equal(t, "false", q.Get("premium_proxy"))

		w.Header().Set("Spb-Cost", "5")
		w.Write([]byte("<html>ok</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	resp, err := c.Fetch(context.Background(), FetchRequest{
		URL:      "https://tokyocheapo.com/place/a/",
		RenderJS: true,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
	assert.Equal(t, 5, resp.Credits)
}

func TestFetch_NonOKIsReturnedNotErrored(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("gone")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL+"/"))
	resp, err := c.Fetch(context.Background(), FetchRequest{URL: "https://x"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, resp.Credits)
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL+"/"), WithTimeout(20*time.Millisecond))
	_, err := c.Fetch(context.Background(), FetchRequest{URL: "https://x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrapingbee: request failed")
}

func TestFetch_RateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL+"/"), WithRateLimit(0.01))
	_, err := c.Fetch(context.Background(), FetchRequest{URL: "https://x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, FetchRequest{URL: "https://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
