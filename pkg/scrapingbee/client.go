package scrapingbee

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://app.scrapingbee.com/api/v1/"
	defaultTimeout = 60 * time.Second
)

// Client fetches rendered pages through the ScrapingBee proxy.
type Client interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// FetchRequest describes one proxied page fetch.
type FetchRequest struct {
	URL          string
	RenderJS     bool
	PremiumProxy bool
}

// FetchResponse is the raw proxied response. StatusCode is whatever the proxy
// returned; callers decide what counts as success.
type FetchResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	// Credits is the Spb-Cost header, 0 when absent.
	Credits int
}

// Option configures the ScrapingBee client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ScrapingBee client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scrapingbee: rate limiter")
		}
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("url", req.URL)
	q.Set("render_js", strconv.FormatBool(req.RenderJS))
	q.Set("premium_proxy", strconv.FormatBool(req.PremiumProxy))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingbee: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingbee: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingbee: read response body")
	}

	credits, _ := strconv.Atoi(resp.Header.Get("Spb-Cost"))
	return &FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
		Credits:    credits,
	}, nil
}
