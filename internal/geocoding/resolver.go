// Package geocoding fills in coordinates for stored places that only have an
// address.
package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/geocode"
)

var (
	// ErrNoMatch means the geocoder could not place the address.
	ErrNoMatch = eris.New("geocoding: address not found")
	// ErrOutOfRegion means the geocoder placed the address outside Greater Tokyo.
	ErrOutOfRegion = eris.New("geocoding: coordinates outside service region")
)

// Region is the accepted service area, x = longitude and y = latitude.
// Points on the edge are rejected.
var Region = geom.NewBounds(geom.XY).Set(139.3, 35.4, 140.1, 36.0)

// InRegion reports whether lat, lng lies strictly inside Region.
func InRegion(lat, lng float64) bool {
	return lng > Region.Min(0) && lng < Region.Max(0) &&
		lat > Region.Min(1) && lat < Region.Max(1)
}

// Resolver turns an address into a position inside the region.
type Resolver struct {
	client geocode.Client
	retry  resilience.RetryConfig
}

// NewResolver wraps client with the default policy: three attempts, one
// second apart.
func NewResolver(client geocode.Client) *Resolver {
	return &Resolver{client: client, retry: resilience.FixedRetry(3, time.Second)}
}

// WithRetry replaces the retry policy.
func (r *Resolver) WithRetry(cfg resilience.RetryConfig) *Resolver {
	r.retry = cfg
	return r
}

// Resolve geocodes address. Transport and quota errors are retried; a miss,
// an out-of-region answer or a refused request returns immediately. A denied
// key comes back as a resilience.AuthError.
func (r *Resolver) Resolve(ctx context.Context, address string) (lat, lng float64, err error) {
	cfg := r.retry
	cfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ErrNoMatch) && !errors.Is(err, ErrOutOfRegion) && !geocode.IsPermanent(err)
	}
	cfg.OnRetry = resilience.RetryLogger("geocode", "resolve")

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*geocode.Result, error) {
		res, err := r.client.Geocode(ctx, address)
		var apiErr *geocode.APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return nil, resilience.NewAuthError("geocode", err, apiErr.HTTPStatus)
		}
		if err != nil {
			return nil, err
		}
		if !res.Matched {
			return nil, ErrNoMatch
		}
		if !InRegion(res.Latitude, res.Longitude) {
			zap.L().Warn("geocode result outside region",
				zap.String("address", address),
				zap.Float64("lat", res.Latitude),
				zap.Float64("lng", res.Longitude),
			)
			return nil, ErrOutOfRegion
		}
		return res, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return res.Latitude, res.Longitude, nil
}
