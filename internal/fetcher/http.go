package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

// DefaultHostRate is the requests/sec allowed per host when HTTPOptions.Rate
// is unset.
const DefaultHostRate = 2.0

// HTTPOptions configures NewHTTPFetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// Rate is the per-host request budget in requests/sec.
	Rate float64
}

// HTTPFetcher downloads documents over HTTP, one polite rate per host.
// Gzipped sitemaps (*.xml.gz) are decompressed transparently.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	hosts  *hostLimiters
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "yorimichi-workers/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultHostRate
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		hosts:  &hostLimiters{base: rate.Limit(opts.Rate), byHost: make(map[string]*rate.Limiter)},
	}
}

// Download GETs rawURL. Anything but 200 is an error; 429 and 5xx are
// retried, and a 429 also halves the host's rate for the rest of the run.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: bad url %q", rawURL)
	}
	lim := f.hosts.get(u.Host)

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger("fetcher", rawURL)

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: new request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			f.hosts.slowDown(u.Host)
		}
		return nil, resilience.StatusError("fetcher", resp, snippet)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}

	if !gzipped(u, resp.Header.Get("Content-Type")) {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, eris.Wrapf(err, "fetcher: gunzip %s", rawURL)
	}
	return &gzipBody{Reader: zr, raw: resp.Body}, nil
}

func gzipped(u *url.URL, contentType string) bool {
	if strings.HasSuffix(u.Path, ".gz") {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "application/gzip") || strings.HasPrefix(ct, "application/x-gzip")
}

type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (g *gzipBody) Close() error {
	zerr := g.Reader.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return zerr
}

// hostLimiters hands out one limiter per host.
type hostLimiters struct {
	mu     sync.Mutex
	base   rate.Limit
	byHost map[string]*rate.Limiter
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.byHost[host]
	if !ok {
		lim = rate.NewLimiter(h.base, 1)
		h.byHost[host] = lim
	}
	return lim
}

// slowDown halves host's rate, never below a quarter of the base rate.
func (h *hostLimiters) slowDown(host string) {
	lim := h.get(host)
	next := max(lim.Limit()/2, h.base/4)
	lim.SetLimit(next)
	zap.L().Warn("fetcher: host rate limited us, slowing down",
		zap.String("host", host), zap.Float64("rate", float64(next)))
}
