// Package reembed refreshes stored vectors that no longer describe their
// place: vectors from another embedding model, places never embedded, and
// places enriched after they were embedded.
package reembed

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/monitoring"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

// PassName labels the pass in logs, checkpoints and alerts.
const PassName = "reembed"

// Store is the persistence the pass needs.
type Store interface {
	ListForReembedding(ctx context.Context, f store.ReembedFilter) ([]model.Entity, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, embeddingModel string, at time.Time) error
}

// Deps are the collaborators of a Runner. Pacer, Costs and Alerter are
// optional.
type Deps struct {
	Store       Store
	Embedder    embed.Embedder
	Checkpoints *checkpoint.Manager
	Pacer       *resilience.Pacer
	Costs       *cost.Tracker
	Alerter     *monitoring.Alerter
}

// Options tune one run.
type Options struct {
	Limit  int
	Resume bool
	// Test builds and logs each document without embedding or writing.
	Test             bool
	ProgressInterval int
	ETAInterval      int
}

// Runner drives the re-embedding pass.
type Runner struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewRunner(deps Deps, opts Options) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, eris.New("reembed: store is required")
	case deps.Embedder == nil:
		return nil, eris.New("reembed: embedder is required")
	case deps.Checkpoints == nil:
		return nil, eris.New("reembed: checkpoint manager is required")
	}
	if deps.Pacer == nil {
		deps.Pacer = resilience.NewPacer(0)
	}
	if deps.Costs == nil {
		deps.Costs = cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	}
	return &Runner{deps: deps, opts: opts, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Run re-embeds every stale entity, newest first. On cancellation, or when
// the embedding endpoint rejects the key, the checkpoint is flushed and the
// run stops with the stats so far.
func (r *Runner) Run(ctx context.Context) (*model.Stats, error) {
	log := zap.L().With(zap.String("pass", PassName))
	embeddingModel := r.deps.Embedder.Model()

	entities, err := r.deps.Store.ListForReembedding(ctx, store.ReembedFilter{
		Model: embeddingModel,
		Limit: r.opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	stats := model.Stats{StartedAt: r.now()}
	if r.opts.Resume {
		cp, err := r.deps.Checkpoints.Load()
		if err != nil {
			return nil, err
		}
		if cp != nil {
			stats = cp.Stats
			stats.StartedAt = r.now()
			ids := make([]string, len(entities))
			for i := range entities {
				ids[i] = entities[i].ID
			}
			entities = entities[len(entities)-len(checkpoint.ResumeAfter(ids, cp.LastProcessedID)):]
			log.Info("resuming from checkpoint",
				zap.String("last_processed_id", cp.LastProcessedID),
				zap.Int("already_processed", stats.Processed),
			)
		}
	}
	stats.Total = stats.Processed + len(entities)
	baseCost := stats.CostUSD

	reporterOpts := []monitoring.ReporterOption{
		monitoring.WithIntervals(r.opts.ProgressInterval, r.opts.ETAInterval),
		monitoring.WithCost(func() float64 { return baseCost + r.deps.Costs.Total() }),
	}
	if r.deps.Alerter != nil {
		reporterOpts = append(reporterOpts, monitoring.WithAlerter(r.deps.Alerter))
	}
	reporter := monitoring.NewReporter(PassName, stats.Total, reporterOpts...)

	log.Info("run started",
		zap.Int("to_process", len(entities)),
		zap.String("model", embeddingModel),
		zap.Bool("test", r.opts.Test),
	)

	lastID := ""
	for i := range entities {
		e := &entities[i]
		if err := r.deps.Pacer.Wait(ctx); err != nil {
			return r.halt(reporter, &stats, lastID, ctx.Err())
		}

		err := r.process(ctx, e, embeddingModel)
		if ctx.Err() != nil {
			return r.halt(reporter, &stats, lastID, ctx.Err())
		}
		if resilience.IsAuth(err) {
			log.Error("credentials rejected, aborting run", zap.String("entity_id", e.ID), zap.Error(err))
			return r.halt(reporter, &stats, lastID, eris.Wrap(err, "reembed: credentials rejected"))
		}

		stats.Processed++
		switch {
		case err != nil:
			stats.Failed++
			log.Warn("re-embedding failed", zap.String("entity_id", e.ID), zap.String("name", e.Name), zap.Error(err))
		case r.opts.Test:
			stats.Skipped++
		default:
			stats.Success++
		}
		stats.CostUSD = baseCost + r.deps.Costs.Total()
		lastID = e.ID

		if _, err := r.deps.Checkpoints.Tick(stats, lastID); err != nil {
			log.Warn("checkpoint write failed", zap.Error(err))
		}
		reporter.Observe(ctx, stats)
	}

	if err := r.deps.Checkpoints.Flush(stats, lastID); err != nil {
		log.Warn("final checkpoint write failed", zap.Error(err))
	}
	reporter.Final(stats, false)
	return &stats, nil
}

func (r *Runner) process(ctx context.Context, e *model.Entity, embeddingModel string) error {
	text := Text(e)
	if r.opts.Test {
		zap.L().Info("test mode, not embedding",
			zap.String("entity_id", e.ID),
			zap.Int("text_len", len(text)),
			zap.String("text", embed.Truncate(text, 200)),
		)
		return nil
	}

	vec, err := r.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if vec.Model != "" {
		embeddingModel = vec.Model
	}
	return r.deps.Store.UpdateEmbedding(ctx, e.ID, vec.Values, embeddingModel, r.now())
}

func (r *Runner) halt(reporter *monitoring.Reporter, stats *model.Stats, lastID string, err error) (*model.Stats, error) {
	if ferr := r.deps.Checkpoints.Flush(*stats, lastID); ferr != nil {
		zap.L().Error("checkpoint flush on interrupt failed", zap.Error(ferr))
	}
	reporter.Final(*stats, true)
	return stats, err
}
