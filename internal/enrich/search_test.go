package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

func TestSearcher_Params(t *testing.T) {
	s := NewSearcher(&fakeDirectory{}, SearchOptions{})
	lat, lng := 35.7148, 139.7967

	near := s.Params(&model.Entity{Name: "Senso-ji", Latitude: &lat, Longitude: &lng})
	assert.Equal(t, foursquare.SearchParams{Query: "Senso-ji", Lat: lat, Lng: lng, Radius: 1000, Limit: 20}, near)

	city := s.Params(&model.Entity{Name: "Senso-ji"})
	assert.Equal(t, foursquare.SearchParams{Query: "Senso-ji", Near: "Tokyo, Japan", Limit: 20}, city)
}

func TestSearcher_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[{"fsq_id":"a","name":"Senso-ji"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	s := NewSearcher(foursquare.NewClient("k", foursquare.WithBaseURL(srv.URL)), SearchOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})

	places, err := s.Candidates(context.Background(), &model.Entity{Name: "Senso-ji"})

	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, s.Calls())
}

func TestSearcher_DoesNotRetryClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSearcher(foursquare.NewClient("bad", foursquare.WithBaseURL(srv.URL)), SearchOptions{
		Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})

	_, err := s.Candidates(context.Background(), &model.Entity{Name: "x"})

	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearcher_PhotosCapped(t *testing.T) {
	dir := &fakeDirectory{photos: map[string][]foursquare.Photo{
		"a": {{ID: "1"}, {ID: "2"}, {ID: "3"}},
	}}
	s := NewSearcher(dir, SearchOptions{MaxPhotos: 2})

	photos, err := s.Photos(context.Background(), "a")

	require.NoError(t, err)
	assert.Len(t, photos, 2)
}

func TestClassify(t *testing.T) {
	assert.True(t, resilience.IsRateLimited(classify(&foursquare.APIError{StatusCode: 429})))
	assert.True(t, resilience.IsTransient(classify(&foursquare.APIError{StatusCode: 502})))
	assert.False(t, resilience.IsTransient(classify(&foursquare.APIError{StatusCode: 404})))
	assert.False(t, resilience.IsAuth(classify(&foursquare.APIError{StatusCode: 404})))
	assert.True(t, resilience.IsAuth(classify(&foursquare.APIError{StatusCode: 401})))
	assert.True(t, resilience.IsAuth(classify(&foursquare.APIError{StatusCode: 403})))
	assert.NoError(t, classify(nil))
}

func TestToCandidate(t *testing.T) {
	c := toCandidate(foursquare.Place{
		FsqID:      "a",
		Name:       "Senso-ji",
		Location:   foursquare.Location{Address: "2-3-1 Asakusa"},
		Categories: []foursquare.Category{{Name: "Temple"}, {Name: ""}},
		Distance:   intPtr(12),
	})

	assert.Equal(t, "2-3-1 Asakusa", c.Address)
	assert.Equal(t, []string{"Temple"}, c.Categories)
	assert.Equal(t, 12, c.Distance)
}
