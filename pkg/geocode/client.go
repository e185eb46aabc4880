// Package geocode resolves free-form Japanese addresses to coordinates with
// the Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const sourceGoogle = "google"

// Client geocodes addresses.
type Client interface {
	// Geocode resolves one address. An address Google cannot place is not an
	// error: the result comes back with Matched false.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result is the position found for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string
	// Quality is one of rooftop, range, centroid or approximate.
	Quality          string
	FormattedAddress string
	// Partial is set when Google matched only part of the query.
	Partial bool
	Matched bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) { g.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) { g.httpClient = hc }
}

// WithRateLimit caps requests per second. rps <= 0 removes the cap.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRegion biases results toward a ccTLD region. Default: "jp".
func WithRegion(region string) Option {
	return func(g *geocoder) { g.region = region }
}

// WithCache memoizes results by normalized address for the client lifetime.
func WithCache() Option {
	return func(g *geocoder) { g.cache = newMemoCache() }
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	region     string
	limiter    *rate.Limiter
	cache      *memoCache
}

// NewClient creates a geocoding Client for the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		region:     "jp",
		limiter:    rate.NewLimiter(10, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode normalizes the address and resolves it, consulting the cache
// first when one is configured.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	query := NormalizeAddress(address)
	if query == "" {
		return unmatched(), nil
	}

	if g.cache != nil {
		if r, ok := g.cache.get(query); ok {
			return r, nil
		}
	}

	r, err := g.lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.put(query, r)
	}
	return r, nil
}
