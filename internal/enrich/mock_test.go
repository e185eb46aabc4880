package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func answer(s string) *llm.Response {
	return &llm.Response{Text: s, Model: "test-model", InputTokens: 80, OutputTokens: 2}
}

// fakeDirectory serves canned places keyed by search query.
type fakeDirectory struct {
	places   map[string][]foursquare.Place
	photos   map[string][]foursquare.Photo
	searches []foursquare.SearchParams
	hook     func(query string)
	errs     map[string]error
}

func (d *fakeDirectory) Search(ctx context.Context, p foursquare.SearchParams) ([]foursquare.Place, error) {
	d.searches = append(d.searches, p)
	if d.hook != nil {
		d.hook(p.Query)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.errs[p.Query]; err != nil {
		return nil, err
	}
	return d.places[p.Query], nil
}

func (d *fakeDirectory) Photos(ctx context.Context, fsqID string, limit int) ([]foursquare.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	photos := d.photos[fsqID]
	if len(photos) > limit {
		photos = photos[:limit]
	}
	return photos, nil
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func place(id, name string) foursquare.Place {
	return foursquare.Place{FsqID: id, Name: name}
}
