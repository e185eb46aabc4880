package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/acquire"
	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/enrich"
	"github.com/KevinLaRosa/yorimichi-workers/internal/fetcher"
	"github.com/KevinLaRosa/yorimichi-workers/internal/geocoding"
	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/monitoring"
	"github.com/KevinLaRosa/yorimichi-workers/internal/pipeline"
	"github.com/KevinLaRosa/yorimichi-workers/internal/reembed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/reference"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
	"github.com/KevinLaRosa/yorimichi-workers/internal/tracker"
	anthropicpkg "github.com/KevinLaRosa/yorimichi-workers/pkg/anthropic"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/geocode"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/scrapingbee"
)

// env holds the store and whatever else a command opened. Callers should
// defer env.Close().
type env struct {
	Store   store.Store
	Costs   *cost.Tracker
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode and opens the store.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return &env{
		Store: st,
		Costs: cost.NewTracker(cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))),
	}, nil
}

func newCheckpoints(pass string) *checkpoint.Manager {
	return checkpoint.NewManager(cfg.CheckpointPath(pass), cfg.Pipeline.CheckpointInterval)
}

func newSitemapFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Retry: resilience.FromConfig(cfg.Retry)})
}

// initCompleter builds the configured chat provider, metered and retried.
func initCompleter(costs *cost.Tracker) (llm.Completer, error) {
	var base llm.Completer
	switch cfg.LLM.Provider {
	case "openai":
		c, err := llm.NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.Key, cfg.OpenAI.FastModel)
		if err != nil {
			return nil, eris.Wrap(err, "init openai completer")
		}
		base = c
	default:
		base = llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key))
	}
	zap.L().Debug("llm provider selected", zap.String("provider", cfg.LLM.Provider))
	return llm.NewRetrying(llm.NewMetered(base, costs), resilience.FromConfig(cfg.Retry)), nil
}

// initTracker opens the configured work-status backend. The pipeline loads
// it at the start of a run.
func (e *env) initTracker(force bool) (*tracker.Tracker, error) {
	switch cfg.Tracker.Backend {
	case "badger":
		b, err := tracker.OpenBadger(cfg.Tracker.BadgerPath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = b.Close() })
		return tracker.New(b, force), nil
	default:
		return tracker.New(e.Store, force), nil
	}
}

type crawlOptions struct {
	Tier   config.ModelTier
	Limit  int
	Force  bool
	Resume bool
}

// initPipeline wires every ingestion collaborator into a Pipeline.
func (e *env) initPipeline(opts crawlOptions) (*pipeline.Pipeline, error) {
	completer, err := initCompleter(e.Costs)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(e.Costs)
	if err != nil {
		return nil, err
	}

	bee := scrapingbee.NewClient(cfg.ScrapingBee.Key,
		scrapingbee.WithBaseURL(cfg.ScrapingBee.BaseURL),
		scrapingbee.WithTimeout(time.Duration(cfg.ScrapingBee.TimeoutSecs)*time.Second),
		scrapingbee.WithRateLimit(cfg.ScrapingBee.RateLimit),
	)

	tr, err := e.initTracker(opts.Force)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Acquirer:    acquire.NewScrapingBee(bee, resilience.FromConfig(cfg.Retry), e.Costs),
		Completer:   completer,
		Embedder:    embedder,
		Store:       e.Store,
		Resolver:    reference.NewCached(e.Store),
		Tracker:     tr,
		Checkpoints: newCheckpoints(pipeline.PassName),
		Pacer:       resilience.NewPacer(cfg.Pipeline.RateLimit),
		Costs:       e.Costs,
		Alerter:     monitoring.NewAlerter(cfg.Monitoring),
	}, pipeline.Options{
		Models:              cfg.Models(opts.Tier),
		MinContentLength:    cfg.Pipeline.MinContentLength,
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
		MatchCount:          cfg.Pipeline.MatchCount,
		SourceName:          cfg.Pipeline.SourceName,
		ProgressInterval:    cfg.Pipeline.ProgressInterval,
		ETAInterval:         cfg.Pipeline.ETAInterval,
		RenderJS:            cfg.ScrapingBee.RenderJS,
		PremiumProxy:        cfg.ScrapingBee.PremiumProxy,
		Resume:              opts.Resume,
		Limit:               opts.Limit,
	})
}

// initEnrichRunner wires the Foursquare search, the LLM reranker and the
// store into an enrichment Runner.
func (e *env) initEnrichRunner(opts enrich.Options) (*enrich.Runner, error) {
	tier, err := config.ParseTier(cfg.Pipeline.ModelTier)
	if err != nil {
		return nil, err
	}
	completer, err := initCompleter(e.Costs)
	if err != nil {
		return nil, err
	}

	fsq := foursquare.NewClient(cfg.Foursquare.Key,
		foursquare.WithBaseURL(cfg.Foursquare.BaseURL),
		foursquare.WithRateLimit(cfg.Foursquare.RateLimit),
	)
	searcher := enrich.NewSearcher(fsq, enrich.SearchOptions{
		Radius:    cfg.Foursquare.SearchRadius,
		Limit:     cfg.Foursquare.SearchLimit,
		MaxPhotos: cfg.Foursquare.MaxPhotos,
		Retry:     resilience.FromConfig(cfg.Retry),
	})

	pass := enrich.PassName
	if opts.Fix {
		pass = enrich.FixPassName
	}
	opts.ProgressInterval = cfg.Pipeline.ProgressInterval
	opts.ETAInterval = cfg.Pipeline.ETAInterval

	return enrich.NewRunner(enrich.Deps{
		Store:       e.Store,
		Searcher:    searcher,
		Reranker:    enrich.NewReranker(completer, cfg.Models(tier).Rerank, nil),
		Checkpoints: newCheckpoints(pass),
		Pacer:       resilience.NewPacer(cfg.Foursquare.RateLimit),
		Alerter:     monitoring.NewAlerter(cfg.Monitoring),
	}, opts)
}

func newEmbedder(costs *cost.Tracker) (*embed.OpenAIEmbedder, error) {
	embedder, err := embed.NewOpenAI(embed.Options{
		BaseURL:   cfg.OpenAI.BaseURL,
		Token:     cfg.OpenAI.Key,
		Model:     cfg.OpenAI.EmbeddingModel,
		Dimension: cfg.OpenAI.EmbeddingDimension,
		Costs:     costs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init embedder")
	}
	return embedder, nil
}

// initReembedRunner wires the embedder into a reembed Runner. It shares the
// crawl's request pacing since both hit the same endpoint.
func (e *env) initReembedRunner(opts reembed.Options) (*reembed.Runner, error) {
	embedder, err := newEmbedder(e.Costs)
	if err != nil {
		return nil, err
	}
	opts.ProgressInterval = cfg.Pipeline.ProgressInterval
	opts.ETAInterval = cfg.Pipeline.ETAInterval

	return reembed.NewRunner(reembed.Deps{
		Store:       e.Store,
		Embedder:    embedder,
		Checkpoints: newCheckpoints(reembed.PassName),
		Pacer:       resilience.NewPacer(cfg.Pipeline.RateLimit),
		Costs:       e.Costs,
		Alerter:     monitoring.NewAlerter(cfg.Monitoring),
	}, opts)
}

// initGeocodeRunner wires the Google geocoder into a geocode Runner.
func (e *env) initGeocodeRunner(opts geocoding.Options) (*geocoding.Runner, error) {
	client := geocode.NewClient(cfg.Google.GeocodeKey,
		geocode.WithRateLimit(cfg.Google.RateLimit),
		geocode.WithCache(),
	)
	opts.ProgressInterval = cfg.Pipeline.ProgressInterval
	opts.ETAInterval = cfg.Pipeline.ETAInterval

	return geocoding.NewRunner(
		e.Store,
		geocoding.NewResolver(client),
		newCheckpoints(geocoding.PassName),
		resilience.NewPacer(cfg.Google.RateLimit),
		monitoring.NewAlerter(cfg.Monitoring),
		opts,
	)
}
