package foursquare

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{"results":[
 {"fsq_id":"4b0588","name":"Senso-ji","verified":true,"distance":42,"rating":9.1,"price":1,
  "location":{"address":"2-3-1 Asakusa","formatted_address":"2-3-1 Asakusa, Taito, Tokyo","lat":35.7148,"lng":139.7967},
  "categories":[{"id":12101,"name":"Buddhist Temple"},{"id":16000,"name":"Landmark"}],
  "hours":{"open_now":true,"regular":[{"day":1,"open":"0600","close":"1700"}]},
  "tel":"03-3842-0181","website":"https://www.senso-ji.jp"},
 {"fsq_id":"5c1234","name":"Senso-ji Gate","location":{"address":"Asakusa"},"categories":[]}
]}`

func TestSearch_NearbyQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/search", r.URL.Path)
		assert.Equal(t, "Bearer fsq-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		q := r.URL.Query()
		assert.Equal(t, "Senso-ji", q.Get("query"))
		assert.Equal(t, "35.7148,139.7967", q.Get("ll"))
		assert.Equal(t, "1000", q.Get("radius"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, searchFields, q.Get("fields"))
		assert.Empty(t, q.Get("near"))

		w.Write([]byte(searchBody)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("fsq-key", WithBaseURL(srv.URL))
	places, err := c.Search(context.Background(), SearchParams{
		Query: "Senso-ji", Lat: 35.7148, Lng: 139.7967, Radius: 1000, Limit: 20,
	})

	require.NoError(t, err)
	require.Len(t, places, 2)
	p := places[0]
	assert.Equal(t, "4b0588", p.FsqID)
	assert.True(t, p.Verified)
	require.NotNil(t, p.Rating)
	assert.Equal(t, 9.1, *p.Rating)
	require.NotNil(t, p.Distance)
	assert.Equal(t, 42, *p.Distance)
	assert.Equal(t, "Buddhist Temple", p.Categories[0].Name)
	require.NotNil(t, p.Hours)
	assert.True(t, p.Hours.OpenNow)

	lat, lng := p.Position()
	assert.Equal(t, 35.7148, lat)
	assert.Equal(t, 139.7967, lng)

	assert.Nil(t, places[1].Rating)
	assert.Nil(t, places[1].Distance)
}

func TestSearch_FallsBackToNear(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, DefaultNear, q.Get("near"))
		assert.Empty(t, q.Get("ll"))
		assert.Empty(t, q.Get("radius"))
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	places, err := c.Search(context.Background(), SearchParams{Query: "Ramen", Radius: 1000})

	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSearch_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchParams{Query: "x"})

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 7, int(apiErr.RetryAfter.Seconds()))
	assert.Contains(t, err.Error(), "slow down")
}

func TestSearch_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchParams{Query: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestPhotos(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/4b0588/photos", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":"p1","prefix":"https://fastly.4sqi.net/img/general/","suffix":"/a.jpg","width":800,"height":600}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	photos, err := c.Photos(context.Background(), "4b0588", 5)

	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "https://fastly.4sqi.net/img/general/original/a.jpg", photos[0].URL())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0.01))
	_, err := c.Search(context.Background(), SearchParams{Query: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Search(ctx, SearchParams{Query: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestPhotoURL(t *testing.T) {
	assert.Equal(t, "https://x/original/y.jpg", PhotoURL("https://x/", "/y.jpg"))
}

func TestConvertHours(t *testing.T) {
	got := ConvertHours(&Hours{Regular: []RegularSlot{
		{Day: 1, Open: "0900", Close: "2100"},
		{Day: 1, Open: "2200", Close: "+0200"},
		{Day: 7, Open: "1000", Close: "1800"},
		{Day: 9, Open: "0000", Close: "2400"},
	}})

	assert.Equal(t, map[string][]OpeningWindow{
		"monday": {{Open: "09:00", Close: "21:00"}, {Open: "22:00", Close: "+0200"}},
		"sunday": {{Open: "10:00", Close: "18:00"}},
	}, got)

	assert.Nil(t, ConvertHours(nil))
	assert.Nil(t, ConvertHours(&Hours{OpenNow: true}))
}
