package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

var threePlaces = []foursquare.Place{
	place("fsq-0", "Senso-ji Souvenirs"),
	place("fsq-1", "Senso-ji Gate"),
	place("fsq-2", "Senso-ji"),
}

func TestReranker_Select(t *testing.T) {
	e := &model.Entity{ID: "e1", Name: "Senso-ji", Address: "2-3-1 Asakusa"}

	tests := []struct {
		name   string
		answer string
		err    error
		want   string
	}{
		{name: "index", answer: "2", want: "fsq-2"},
		{name: "index with noise", answer: " Index: 1\n", want: "fsq-1"},
		{name: "none", answer: "-1", want: ""},
		{name: "out of range", answer: "7", want: "fsq-0"},
		{name: "unparseable", answer: "the temple", want: "fsq-0"},
		{name: "llm error", err: errors.New("overloaded"), want: "fsq-0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mockCompleter{}
			if tt.err != nil {
				c.On("Complete", mock.Anything, mock.Anything).Return(nil, tt.err)
			} else {
				c.On("Complete", mock.Anything, mock.Anything).Return(answer(tt.answer), nil)
			}

			got, err := NewReranker(c, "rerank-model", nil).Select(context.Background(), e, threePlaces)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.FsqID)
		})
	}
}

func TestReranker_SelectShortLists(t *testing.T) {
	c := &mockCompleter{}
	r := NewReranker(c, "rerank-model", nil)
	e := &model.Entity{Name: "Senso-ji"}

	none, err := r.Select(context.Background(), e, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	got, err := r.Select(context.Background(), e, threePlaces[2:])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fsq-2", got.FsqID)

	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestReranker_RequestShape(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Model == "rerank-model" && r.Temperature == 0.1 && r.MaxTokens == 10
	})).Return(answer("0"), nil)

	got, err := NewReranker(c, "rerank-model", nil).Select(context.Background(), &model.Entity{Name: "X"}, threePlaces)

	require.NoError(t, err)
	require.NotNil(t, got)
	c.AssertExpectations(t)
}

func TestReranker_OpenBreakerFallsBack(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "rerank", FailureThreshold: 1, ResetTimeout: time.Hour,
	})
	r := NewReranker(c, "m", breaker)
	e := &model.Entity{Name: "Senso-ji"}

	first, err := r.Select(context.Background(), e, threePlaces)
	require.NoError(t, err)
	second, err := r.Select(context.Background(), e, threePlaces)
	require.NoError(t, err)

	assert.Equal(t, "fsq-0", first.FsqID)
	assert.Equal(t, "fsq-0", second.FsqID)
	c.AssertNumberOfCalls(t, "Complete", 1)
}

func TestReranker_RejectedCredentials(t *testing.T) {
	c := &mockCompleter{}
	c.On("Complete", mock.Anything, mock.Anything).
		Return(nil, resilience.NewAuthError("anthropic", errors.New("invalid x-api-key"), 401))

	got, err := NewReranker(c, "m", nil).Select(context.Background(), &model.Entity{Name: "Senso-ji"}, threePlaces)
	require.Error(t, err)
	assert.True(t, resilience.IsAuth(err))
	assert.Nil(t, got, "no fallback pick on rejected credentials")
}

func TestRerankPrompt(t *testing.T) {
	places := []foursquare.Place{
		{
			FsqID:      "a",
			Name:       "Senso-ji",
			Location:   foursquare.Location{Address: "2-3-1 Asakusa", FormattedAddress: "2-3-1 Asakusa, Taito"},
			Categories: []foursquare.Category{{Name: "Temple"}, {Name: "Landmark"}},
			Distance:   intPtr(42),
			Verified:   true,
		},
		{FsqID: "b", Name: "Gate"},
	}

	got := rerankPrompt(&model.Entity{Name: "Senso-ji Temple"}, places)

	assert.Contains(t, got, "0. Senso-ji | address: 2-3-1 Asakusa, Taito | categories: Temple, Landmark | distance: 42m | verified: true")
	assert.Contains(t, got, "1. Gate | address: N/A | categories: N/A | distance: N/A | verified: false")
	assert.Contains(t, got, "Name: Senso-ji Temple\nAddress: N/A")
}
