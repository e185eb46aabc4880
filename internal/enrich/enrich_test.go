package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

var baseTime = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "yorimichi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seed stores an entity created age hours after baseTime.
func seed(t *testing.T, st *store.SQLiteStore, id, name string, age int, coords bool) {
	t.Helper()
	e := &model.Entity{
		ID:          id,
		Name:        name,
		Description: name + " description",
		SourceURL:   "https://tokyocheapo.com/place/" + id + "/",
		SourceName:  "Tokyo Cheapo",
		CreatedAt:   baseTime.Add(time.Duration(age) * time.Hour),
	}
	if coords {
		lat, lng := 35.7, 139.8
		e.Latitude, e.Longitude = &lat, &lng
	}
	_, err := st.InsertEntity(context.Background(), e, nil)
	require.NoError(t, err)
}

// link marks an entity as already enriched with fsqID.
func link(t *testing.T, st *store.SQLiteStore, id, fsqID string) {
	t.Helper()
	require.NoError(t, st.UpdateEnrichment(context.Background(), id, store.EnrichmentUpdate{
		Provider:   model.ProviderFoursquare,
		ExternalID: fsqID,
		Status:     model.EnrichmentEnriched,
		EnrichedAt: baseTime,
	}))
}

type runHarness struct {
	store  *store.SQLiteStore
	dir    *fakeDirectory
	llm    *mockCompleter
	cpPath string
}

func newRunHarness(t *testing.T) *runHarness {
	return &runHarness{
		store:  newStore(t),
		dir:    &fakeDirectory{places: map[string][]foursquare.Place{}, photos: map[string][]foursquare.Photo{}},
		llm:    &mockCompleter{},
		cpPath: filepath.Join(t.TempDir(), "enrich_checkpoint.json"),
	}
}

func (h *runHarness) runner(t *testing.T, opts Options) *Runner {
	t.Helper()
	r, err := NewRunner(Deps{
		Store:       h.store,
		Searcher:    NewSearcher(h.dir, SearchOptions{}),
		Reranker:    NewReranker(h.llm, "rerank-model", nil),
		Checkpoints: checkpoint.NewManager(h.cpPath, 25),
	}, opts)
	require.NoError(t, err)
	return r
}

// scenario: a matched entity, one with no directory result and one whose
// match is already linked elsewhere.
func (h *runHarness) scenario(t *testing.T) {
	seed(t, h.store, "linked", "Kaminarimon", 0, true)
	link(t, h.store, "linked", "fsq-taken")
	seed(t, h.store, "dup", "Gate Cafe", 1, true)
	seed(t, h.store, "none", "Tiny Bar", 2, false)
	seed(t, h.store, "match", "Senso-ji", 3, true)

	h.dir.places["Senso-ji"] = []foursquare.Place{*sensoji()}
	h.dir.places["Gate Cafe"] = []foursquare.Place{place("fsq-taken", "Kaminarimon")}
	h.dir.photos["4b0588"] = []foursquare.Photo{
		{ID: "p1", Prefix: "https://img/", Suffix: "/1.jpg"},
		{ID: "p2", Prefix: "https://img/", Suffix: "/2.jpg"},
	}
}

func TestRun_Enrich(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)
	ctx := context.Background()

	stats, err := h.runner(t, Options{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.NoMatch)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 5, stats.APICalls)

	// newest first
	require.Len(t, h.dir.searches, 3)
	assert.Equal(t, "Senso-ji", h.dir.searches[0].Query)
	assert.Equal(t, 1000, h.dir.searches[0].Radius)
	assert.Equal(t, "Tiny Bar", h.dir.searches[1].Query)
	assert.Equal(t, foursquare.DefaultNear, h.dir.searches[1].Near)

	got, err := h.store.GetEntity(ctx, "match")
	require.NoError(t, err)
	assert.Equal(t, "4b0588", got.ExternalID(model.ProviderFoursquare))
	assert.Equal(t, model.EnrichmentEnriched, got.EnrichmentStatus)
	assert.Equal(t, "Buddhist Temple", got.Category)
	assert.Equal(t, "2-3-1 Asakusa, Taito, Tokyo", got.Address)
	assert.Equal(t, 35.7, *got.Latitude)
	assert.Equal(t, 9.1, got.Attributes["rating"])
	assert.Equal(t, "03-3842-0181", got.Attributes["phone"])
	assert.Contains(t, got.EnrichedAt, model.ProviderFoursquare)

	imgs, err := h.store.ListImages(ctx, store.ImagePrefix("match"))
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "https://img/original/1.jpg", imgs[0].URL)

	none, err := h.store.GetEntity(ctx, "none")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentNoMatch, none.EnrichmentStatus)
	assert.Empty(t, none.ExternalID(model.ProviderFoursquare))

	dup, err := h.store.GetEntity(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentDuplicate, dup.EnrichmentStatus)
	assert.Empty(t, dup.ExternalID(model.ProviderFoursquare))

	cp, err := checkpoint.NewManager(h.cpPath, 25).Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "dup", cp.LastProcessedID)
}

func TestRun_RerunOnlyRetriesUnlinked(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)
	ctx := context.Background()

	_, err := h.runner(t, Options{}).Run(ctx)
	require.NoError(t, err)
	h.dir.searches = nil

	stats, err := h.runner(t, Options{}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	require.Len(t, h.dir.searches, 1)
	assert.Equal(t, "Tiny Bar", h.dir.searches[0].Query)
}

func TestRun_MarkDuplicatesExcludesThem(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)
	ctx := context.Background()

	_, err := h.runner(t, Options{}).Run(ctx)
	require.NoError(t, err)

	n, err := MarkDuplicates(ctx, h.store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dup, err := h.store.GetEntity(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentIgnored, dup.EnrichmentStatus)

	h.dir.searches = nil
	_, err = h.runner(t, Options{Force: true}).Run(ctx)
	require.NoError(t, err)
	for _, s := range h.dir.searches {
		assert.NotEqual(t, "Gate Cafe", s.Query)
	}
}

func TestRun_TestModeWritesNothing(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)
	ctx := context.Background()

	stats, err := h.runner(t, Options{Test: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Matched)

	for _, id := range []string{"match", "none", "dup"} {
		e, err := h.store.GetEntity(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.EnrichmentPending, e.EnrichmentStatus, id)
		assert.Empty(t, e.ExternalID(model.ProviderFoursquare), id)
	}
	imgs, err := h.store.ListImages(ctx, store.ImagePrefix("match"))
	require.NoError(t, err)
	assert.Empty(t, imgs)
}

func TestRun_FixPass(t *testing.T) {
	h := newRunHarness(t)
	ctx := context.Background()

	seed(t, h.store, "good", "Senso-ji", 1, true)
	link(t, h.store, "good", "4b0588")
	seed(t, h.store, "wrong", "Gate Cafe", 2, false)
	link(t, h.store, "wrong", "fsq-souvenir")
	require.NoError(t, h.store.SaveImages(ctx, []model.Image{
		{EntityID: "wrong", Path: "pois/wrong/old.jpg", URL: "https://img/old.jpg", Source: PhotoSource},
	}))

	h.dir.places["Senso-ji"] = []foursquare.Place{*sensoji()}
	cafe := place("fsq-cafe", "Gate Cafe")
	cafe.Location = foursquare.Location{FormattedAddress: "1-2 Asakusa", Lat: 35.711, Lng: 139.796}
	h.dir.places["Gate Cafe"] = []foursquare.Place{place("fsq-souvenir", "Gate Souvenirs"), cafe}
	h.dir.photos["fsq-cafe"] = []foursquare.Photo{{ID: "c1", Prefix: "https://img/", Suffix: "/c.jpg"}}
	h.llm.On("Complete", mock.Anything, mock.Anything).Return(answer("1"), nil)

	stats, err := h.runner(t, Options{Fix: true}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Fixed)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.ImagesInvalidated)

	wrong, err := h.store.GetEntity(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, "fsq-cafe", wrong.ExternalID(model.ProviderFoursquare))
	assert.Equal(t, "1-2 Asakusa", wrong.Address)
	require.NotNil(t, wrong.Latitude)
	assert.Equal(t, 35.711, *wrong.Latitude)

	imgs, err := h.store.ListImages(ctx, store.ImagePrefix("wrong"))
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, "pois/wrong/fsq_c1.jpg", imgs[0].Path)

	good, err := h.store.GetEntity(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "4b0588", good.ExternalID(model.ProviderFoursquare))
}

func TestRun_FixPassNoCandidateFails(t *testing.T) {
	h := newRunHarness(t)
	seed(t, h.store, "lost", "Closed Bar", 1, true)
	link(t, h.store, "lost", "fsq-closed")

	stats, err := h.runner(t, Options{Fix: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	lost, err := h.store.GetEntity(context.Background(), "lost")
	require.NoError(t, err)
	assert.Equal(t, "fsq-closed", lost.ExternalID(model.ProviderFoursquare))
}

func TestRun_InterruptThenResume(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)

	ctx, cancel := context.WithCancel(context.Background())
	h.dir.hook = func(query string) {
		if query == "Tiny Bar" {
			cancel()
		}
	}

	stats, err := h.runner(t, Options{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Processed)

	cp, err := checkpoint.NewManager(h.cpPath, 25).Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "match", cp.LastProcessedID)
	assert.Equal(t, 1, cp.Stats.Matched)

	h.dir.hook = nil
	resumedAt := time.Now()
	stats, err = h.runner(t, Options{Resume: true}).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.StartedAt.Before(resumedAt), "a resumed run is timed from its own start")
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.NoMatch)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestRun_RejectedCredentialsAbort(t *testing.T) {
	h := newRunHarness(t)
	h.scenario(t)
	h.dir.errs = map[string]error{"Senso-ji": &foursquare.APIError{StatusCode: 401, Body: "invalid key"}}
	ctx := context.Background()

	stats, err := h.runner(t, Options{}).Run(ctx)
	require.Error(t, err)
	assert.True(t, resilience.IsAuth(err))
	assert.Zero(t, stats.Processed)
	assert.Len(t, h.dir.searches, 1, "the run stops at the first rejection")

	got, err := h.store.GetEntity(ctx, "match")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentPending, got.EnrichmentStatus, "no terminal status on rejected credentials")
}

func TestRun_PacesEveryEntity(t *testing.T) {
	const gap = 30 * time.Millisecond
	h := newRunHarness(t)
	h.scenario(t)

	var starts []time.Time
	h.dir.hook = func(string) { starts = append(starts, time.Now()) }
	r, err := NewRunner(Deps{
		Store:       h.store,
		Searcher:    NewSearcher(h.dir, SearchOptions{}),
		Reranker:    NewReranker(h.llm, "rerank-model", nil),
		Checkpoints: checkpoint.NewManager(h.cpPath, 25),
		Pacer:       resilience.NewPacerInterval(gap),
	}, Options{Test: true})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), gap-5*time.Millisecond)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), gap-5*time.Millisecond)
}

func TestNewRunner_RequiresDeps(t *testing.T) {
	_, err := NewRunner(Deps{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

type failingStore struct {
	Store
}

func (failingStore) MarkDuplicatesIgnored(context.Context) (int, error) {
	return 0, errors.New("locked")
}

func TestMarkDuplicates_Error(t *testing.T) {
	_, err := MarkDuplicates(context.Background(), failingStore{})
	require.Error(t, err)
}
