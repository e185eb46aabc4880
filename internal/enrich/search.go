package enrich

import (
	"context"
	"errors"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

const serviceName = "foursquare"

// Searcher finds directory candidates for an entity and fetches photos for
// the chosen one. Every outbound call goes through the retry policy.
type Searcher struct {
	client    foursquare.Client
	retry     resilience.RetryConfig
	radius    int
	limit     int
	maxPhotos int
	calls     int
}

// SearchOptions tune candidate search.
type SearchOptions struct {
	Radius    int
	Limit     int
	MaxPhotos int
	Retry     resilience.RetryConfig
}

// NewSearcher wraps a Foursquare client.
func NewSearcher(c foursquare.Client, opts SearchOptions) *Searcher {
	if opts.Radius <= 0 {
		opts.Radius = 1000
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.MaxPhotos <= 0 {
		opts.MaxPhotos = 5
	}
	return &Searcher{
		client:    c,
		retry:     opts.Retry,
		radius:    opts.Radius,
		limit:     opts.Limit,
		maxPhotos: opts.MaxPhotos,
	}
}

// Calls is the number of API requests issued so far, retries included.
func (s *Searcher) Calls() int { return s.calls }

// Params builds the search for e: a radius search around its position when
// it has one, otherwise a search near the city.
func (s *Searcher) Params(e *model.Entity) foursquare.SearchParams {
	p := foursquare.SearchParams{Query: e.Name, Limit: s.limit}
	if e.HasCoordinates() {
		p.Lat, p.Lng, p.Radius = *e.Latitude, *e.Longitude, s.radius
	} else {
		p.Near = foursquare.DefaultNear
	}
	return p
}

// Candidates returns the places matching e, in API order.
func (s *Searcher) Candidates(ctx context.Context, e *model.Entity) ([]foursquare.Place, error) {
	params := s.Params(e)
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]foursquare.Place, error) {
		s.calls++
		places, err := s.client.Search(ctx, params)
		return places, classify(err)
	})
}

// Photos returns up to the configured number of photos for a place.
func (s *Searcher) Photos(ctx context.Context, fsqID string) ([]foursquare.Photo, error) {
	photos, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]foursquare.Photo, error) {
		s.calls++
		photos, err := s.client.Photos(ctx, fsqID, s.maxPhotos)
		return photos, classify(err)
	})
	if len(photos) > s.maxPhotos {
		photos = photos[:s.maxPhotos]
	}
	return photos, err
}

// classify maps API status errors onto the retry policy's error kinds.
func classify(err error) error {
	var apiErr *foursquare.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == 429 {
		return &resilience.RateLimitError{Service: serviceName, RetryAfter: apiErr.RetryAfter}
	}
	return resilience.ClassifyStatus(serviceName, err, apiErr.StatusCode)
}

// toCandidate flattens a place into the stored candidate shape.
func toCandidate(p foursquare.Place) model.MatchCandidate {
	lat, lng := p.Position()
	c := model.MatchCandidate{
		ExternalID: p.FsqID,
		Name:       p.Name,
		Address:    placeAddress(p),
		Latitude:   lat,
		Longitude:  lng,
		Verified:   p.Verified,
		Rating:     p.Rating,
		Price:      p.Price,
		Phone:      p.Tel,
		Website:    p.Website,
	}
	for _, cat := range p.Categories {
		if cat.Name != "" {
			c.Categories = append(c.Categories, cat.Name)
		}
	}
	if p.Distance != nil {
		c.Distance = *p.Distance
	}
	return c
}

func placeAddress(p foursquare.Place) string {
	if p.Location.FormattedAddress != "" {
		return p.Location.FormattedAddress
	}
	return p.Location.Address
}
