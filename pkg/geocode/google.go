package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// APIError is a request Google refused or could not serve. HTTPStatus is set
// for non-200 responses; Status carries the API status otherwise.
type APIError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.HTTPStatus != 0:
		return fmt.Sprintf("geocode: google returned http %d", e.HTTPStatus)
	case e.Message != "":
		return fmt.Sprintf("geocode: google status %s: %s", e.Status, e.Message)
	default:
		return "geocode: google status " + e.Status
	}
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500
	}
	return e.Status == "OVER_QUERY_LIMIT" || e.Status == "UNKNOWN_ERROR"
}

// Unauthorized reports whether Google refused the key itself.
func (e *APIError) Unauthorized() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden ||
		e.Status == "REQUEST_DENIED"
}

// IsPermanent reports whether err is a refusal that retrying cannot fix,
// such as a denied key or a malformed request.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

type apiResponse struct {
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message"`
	Results      []apiResult `json:"results"`
}

type apiResult struct {
	FormattedAddress string      `json:"formatted_address"`
	PartialMatch     bool        `json:"partial_match"`
	Geometry         apiGeometry `json:"geometry"`
}

type apiGeometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	LocationType string `json:"location_type"`
}

var locationQuality = map[string]string{
	"ROOFTOP":            "rooftop",
	"RANGE_INTERPOLATED": "range",
	"GEOMETRIC_CENTER":   "centroid",
}

// qualityOf maps Google's location_type onto Result.Quality.
func qualityOf(locationType string) string {
	if q, ok := locationQuality[strings.ToUpper(locationType)]; ok {
		return q
	}
	return "approximate"
}

func unmatched() *Result { return &Result{Source: sourceGoogle} }

// lookup sends one query to the Geocoding API. Only the first result is used.
func (g *geocoder) lookup(ctx context.Context, query string) (*Result, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limiter")
	}

	params := url.Values{
		"address":  {query},
		"key":      {g.apiKey},
		"language": {"en"},
	}
	if g.region != "" {
		params.Set("region", g.region)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{HTTPStatus: resp.StatusCode}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return unmatched(), nil
	default:
		return nil, &APIError{Status: body.Status, Message: body.ErrorMessage}
	}
	if len(body.Results) == 0 {
		return unmatched(), nil
	}

	top := body.Results[0]
	return &Result{
		Latitude:         top.Geometry.Location.Lat,
		Longitude:        top.Geometry.Location.Lng,
		Source:           sourceGoogle,
		Quality:          qualityOf(top.Geometry.LocationType),
		FormattedAddress: top.FormattedAddress,
		Partial:          top.PartialMatch,
		Matched:          true,
	}, nil
}
