package foursquare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.foursquare.com/v3"
	defaultTimeout = 30 * time.Second

	// DefaultNear anchors searches for places without coordinates.
	DefaultNear = "Tokyo, Japan"

	searchFields = "fsq_id,name,location,categories,rating,price,verified,distance,hours,tel,website"
)

// Client queries the Foursquare Places API.
type Client interface {
	Search(ctx context.Context, params SearchParams) ([]Place, error)
	Photos(ctx context.Context, fsqID string, limit int) ([]Photo, error)
}

// SearchParams narrows a place search. When Lat and Lng are both zero the
// search falls back to Near.
type SearchParams struct {
	Query  string
	Lat    float64
	Lng    float64
	Radius int
	Near   string
	Limit  int
}

// Place is one search result.
type Place struct {
	FsqID      string     `json:"fsq_id"`
	Name       string     `json:"name"`
	Location   Location   `json:"location"`
	Categories []Category `json:"categories"`
	Rating     *float64   `json:"rating,omitempty"`
	Price      *int       `json:"price,omitempty"`
	Verified   bool       `json:"verified"`
	Distance   *int       `json:"distance,omitempty"`
	Hours      *Hours     `json:"hours,omitempty"`
	Tel        string     `json:"tel,omitempty"`
	Website    string     `json:"website,omitempty"`
	Geocodes   Geocodes   `json:"geocodes"`
}

// Location is the postal part of a place.
type Location struct {
	Address          string  `json:"address,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	CrossStreet      string  `json:"cross_street,omitempty"`
	Postcode         string  `json:"postcode,omitempty"`
	Lat              float64 `json:"lat,omitempty"`
	Lng              float64 `json:"lng,omitempty"`
}

// Geocodes carries the main position of a place.
type Geocodes struct {
	Main struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"main"`
}

// Category is a Foursquare category label.
type Category struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// Hours are the opening hours as returned by the API.
type Hours struct {
	Display string        `json:"display,omitempty"`
	OpenNow bool          `json:"open_now"`
	Regular []RegularSlot `json:"regular,omitempty"`
}

// RegularSlot is one opening window. Day runs 1 (Monday) to 7 (Sunday);
// Open and Close are "HHMM".
type RegularSlot struct {
	Day   int    `json:"day"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Photo is a place photo reference.
type Photo struct {
	ID        string `json:"id"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt string `json:"created_at,omitempty"`
}

// URL returns the full-size photo URL.
func (p Photo) URL() string { return PhotoURL(p.Prefix, p.Suffix) }

// PhotoURL joins a photo prefix and suffix at original size.
func PhotoURL(prefix, suffix string) string {
	return prefix + "original" + suffix
}

// Position returns the best known coordinates of the place.
func (p Place) Position() (lat, lng float64) {
	if p.Location.Lat != 0 || p.Location.Lng != 0 {
		return p.Location.Lat, p.Location.Lng
	}
	return p.Geocodes.Main.Latitude, p.Geocodes.Main.Longitude
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("foursquare: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Foursquare client.
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

// NewClient creates a Foursquare Places client.
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

type searchResponse struct {
	Results []Place `json:"results"`
}

func (c *httpClient) Search(ctx context.Context, params SearchParams) ([]Place, error) {
	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("fields", searchFields)
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Lat != 0 || params.Lng != 0 {
		q.Set("ll", strconv.FormatFloat(params.Lat, 'f', -1, 64)+","+strconv.FormatFloat(params.Lng, 'f', -1, 64))
		if params.Radius > 0 {
			q.Set("radius", strconv.Itoa(params.Radius))
		}
	} else {
		near := params.Near
		if near == "" {
			near = DefaultNear
		}
		q.Set("near", near)
	}

	var out searchResponse
	if err := c.get(ctx, "/places/search", q, &out); err != nil {
		return nil, eris.Wrapf(err, "foursquare: search %q", params.Query)
	}
	return out.Results, nil
}

func (c *httpClient) Photos(ctx context.Context, fsqID string, limit int) ([]Photo, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out []Photo
	if err := c.get(ctx, "/places/"+url.PathEscape(fsqID)+"/photos", q, &out); err != nil {
		return nil, eris.Wrapf(err, "foursquare: photos %s", fsqID)
	}
	return out, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, dst any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter")
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
