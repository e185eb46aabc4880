// Package pipeline turns source pages into stored places: fetch, extract,
// qualify, describe, embed, dedup and persist, one item at a time.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/acquire"
	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/monitoring"
	"github.com/KevinLaRosa/yorimichi-workers/internal/reference"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/internal/tracker"
)

// PassName labels the ingestion pass in logs, checkpoints and alerts.
const PassName = "crawl"

// Store is the persistence the ingestion pass needs.
type Store interface {
	EntityWriter
	SimilaritySearcher
}

// Deps are the collaborators of a Pipeline. Everything but Alerter is
// required.
type Deps struct {
	Acquirer    acquire.Acquirer
	Completer   llm.Completer
	Embedder    embed.Embedder
	Store       Store
	Resolver    reference.Resolver
	Tracker     *tracker.Tracker
	Checkpoints *checkpoint.Manager
	Pacer       *resilience.Pacer
	Costs       *cost.Tracker
	Alerter     *monitoring.Alerter
}

// Options tune one ingestion run.
type Options struct {
	Models              config.TierModels
	MinContentLength    int
	SimilarityThreshold float64
	MatchCount          int
	SourceName          string
	ProgressInterval    int
	ETAInterval         int
	RenderJS            bool
	PremiumProxy        bool
	Resume              bool
	// Limit caps the items processed after already handled ones are
	// filtered out. Zero means no cap.
	Limit int
}

// Outcome is the decision reached for one item.
type Outcome struct {
	Status   model.Status
	Stage    Stage
	Err      error
	EntityID string
	Dedup    DedupResult
}

// Detail is the error text recorded with the item, if any.
func (o Outcome) Detail() string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case o.Dedup.Duplicate:
		return "duplicate of " + o.Dedup.MatchID
	}
	return ""
}

// Pipeline is the ingestion run context, built once per run.
type Pipeline struct {
	deps Deps
	opts Options

	classifier *Classifier
	generator  *Generator
	structurer *StructuredExtractor
	deduper    *Deduper
	persister  *Persister
}

// New validates deps and builds the stage chain.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Acquirer == nil:
		return nil, eris.New("pipeline: acquirer is required")
	case deps.Completer == nil:
		return nil, eris.New("pipeline: completer is required")
	case deps.Embedder == nil:
		return nil, eris.New("pipeline: embedder is required")
	case deps.Store == nil:
		return nil, eris.New("pipeline: store is required")
	case deps.Resolver == nil:
		return nil, eris.New("pipeline: resolver is required")
	case deps.Tracker == nil:
		return nil, eris.New("pipeline: tracker is required")
	case deps.Checkpoints == nil:
		return nil, eris.New("pipeline: checkpoint manager is required")
	}
	if deps.Pacer == nil {
		deps.Pacer = resilience.NewPacer(0)
	}
	if deps.Costs == nil {
		deps.Costs = cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	}
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = extract.MinContentLength
	}

	return &Pipeline{
		deps:       deps,
		opts:       opts,
		classifier: NewClassifier(deps.Completer, opts.Models.Classify),
		generator:  NewGenerator(deps.Completer, opts.Models.Generate, opts.Models.GenerateTemperature),
		structurer: NewStructuredExtractor(deps.Completer, opts.Models.Extract),
		deduper:    NewDeduper(deps.Store, opts.SimilarityThreshold, opts.MatchCount),
		persister:  NewPersister(deps.Store, deps.Resolver, opts.SourceName, string(opts.Models.Tier)),
	}, nil
}

// Run processes ids in order and returns the run stats. Items already in a
// terminal state are skipped unless the tracker was built with force. On
// cancellation the checkpoint is flushed and ctx.Err() is returned with the
// stats reached so far. Rejected credentials abort the run the same way,
// without recording the item that hit them.
func (p *Pipeline) Run(ctx context.Context, ids []string) (*model.Stats, error) {
	log := zap.L().With(zap.String("pass", PassName))

	if err := p.deps.Tracker.Load(ctx); err != nil {
		return nil, err
	}

	stats := model.Stats{StartedAt: time.Now().UTC()}
	if p.opts.Resume {
		cp, err := p.deps.Checkpoints.Load()
		if err != nil {
			return nil, err
		}
		if cp != nil {
			stats = cp.Stats
			stats.StartedAt = time.Now().UTC()
			ids = checkpoint.ResumeAfter(ids, cp.LastProcessedID)
			log.Info("resuming from checkpoint",
				zap.String("last_processed_id", cp.LastProcessedID),
				zap.Int("already_processed", stats.Processed),
			)
		}
	}

	todo, filtered := p.deps.Tracker.Filter(ids)
	if filtered > 0 {
		log.Info("skipping already processed items", zap.Int("count", filtered))
	}
	if p.opts.Limit > 0 && len(todo) > p.opts.Limit {
		todo = todo[:p.opts.Limit]
	}
	stats.Total = stats.Processed + len(todo)
	baseCost := stats.CostUSD

	reporterOpts := []monitoring.ReporterOption{
		monitoring.WithIntervals(p.opts.ProgressInterval, p.opts.ETAInterval),
		monitoring.WithCost(func() float64 { return baseCost + p.deps.Costs.Total() }),
	}
	if p.deps.Alerter != nil {
		reporterOpts = append(reporterOpts, monitoring.WithAlerter(p.deps.Alerter))
	}
	reporter := monitoring.NewReporter(PassName, stats.Total, reporterOpts...)

	log.Info("run started",
		zap.Int("to_process", len(todo)),
		zap.String("tier", string(p.opts.Models.Tier)),
	)

	lastID := ""
	for _, id := range todo {
		if err := p.deps.Pacer.Wait(ctx); err != nil {
			return p.interrupt(ctx, reporter, &stats, lastID)
		}

		out := p.ProcessItem(ctx, id)
		if ctx.Err() != nil {
			// The item was cut short; leave it pending for the next run.
			return p.interrupt(ctx, reporter, &stats, lastID)
		}
		if resilience.IsAuth(out.Err) {
			// Nothing was learned about the item; leave it pending.
			log.Error("credentials rejected, aborting run",
				zap.String("id", id),
				zap.String("stage", string(out.Stage)),
				zap.Error(out.Err),
			)
			return p.halt(reporter, &stats, lastID, eris.Wrap(out.Err, "pipeline: credentials rejected"))
		}

		if err := p.deps.Tracker.Record(ctx, id, out.Status, string(out.Stage), out.Detail()); err != nil {
			log.Error("failed to record item status", zap.String("id", id), zap.Error(err))
		}
		stats.Record(out.Status)
		stats.CostUSD = baseCost + p.deps.Costs.Total()
		lastID = id

		if out.Status == model.StatusFailed {
			log.Warn("item failed",
				zap.String("id", id),
				zap.String("stage", string(out.Stage)),
				zap.Error(out.Err),
			)
		}

		if _, err := p.deps.Checkpoints.Tick(stats, lastID); err != nil {
			log.Warn("checkpoint write failed", zap.Error(err))
		}
		reporter.Observe(ctx, stats)
	}

	if err := p.deps.Checkpoints.Flush(stats, lastID); err != nil {
		log.Warn("final checkpoint write failed", zap.Error(err))
	}
	reporter.Final(stats, false)
	return &stats, nil
}

func (p *Pipeline) interrupt(ctx context.Context, reporter *monitoring.Reporter, stats *model.Stats, lastID string) (*model.Stats, error) {
	return p.halt(reporter, stats, lastID, ctx.Err())
}

// halt ends the run early: the checkpoint keeps lastID so a resume picks up
// with the next item.
func (p *Pipeline) halt(reporter *monitoring.Reporter, stats *model.Stats, lastID string, err error) (*model.Stats, error) {
	if ferr := p.deps.Checkpoints.Flush(*stats, lastID); ferr != nil {
		zap.L().Error("checkpoint flush on interrupt failed", zap.Error(ferr))
	}
	reporter.Final(*stats, true)
	return stats, err
}

// ProcessItem runs one identifier through every stage and returns the
// decision. It never panics on a bad item and never returns a nil error
// with a failed status.
func (p *Pipeline) ProcessItem(ctx context.Context, id string) Outcome {
	log := zap.L().With(zap.String("id", id))

	resp, err := p.deps.Acquirer.Fetch(ctx, acquire.Request{
		ID:           id,
		RenderJS:     p.opts.RenderJS,
		PremiumProxy: p.opts.PremiumProxy,
	})
	if err != nil {
		return failed(StageFetch, ErrFetch, err)
	}

	page, err := extract.Extract(resp.Body, id)
	if err != nil {
		return failed(StageExtract, ErrExtraction, err)
	}
	if !extract.Qualifies(page, p.opts.MinContentLength) {
		log.Debug("content too short", zap.Int("length", page.TextLen()))
		return Outcome{Status: model.StatusSkippedNotQualified, Stage: StageQualify}
	}

	cls, err := p.classifier.Classify(ctx, page)
	if err != nil {
		return failed(StageClassify, ErrClassification, err)
	}
	if !cls.IsPOI {
		log.Debug("not a place", zap.String("title", page.Title))
		return Outcome{Status: model.StatusSkippedNotQualified, Stage: StageClassify}
	}

	desc, err := p.generator.Generate(ctx, page, cls)
	if err != nil {
		return failed(StageGenerate, ErrGeneration, err)
	}

	st, err := p.structurer.Extract(ctx, page, desc, cls)
	if err != nil {
		return failed(StageStructure, ErrStructuring, err)
	}

	vec, err := p.deps.Embedder.Embed(ctx, desc)
	if err != nil {
		return failed(StageEmbed, ErrEmbedding, err)
	}

	dup, err := p.deduper.Check(ctx, vec.Values)
	if err != nil {
		return failed(StageDedup, ErrSimilarity, err)
	}
	if dup.Duplicate {
		log.Info("duplicate skipped",
			zap.String("match_id", dup.MatchID),
			zap.String("match_name", dup.MatchName),
			zap.Float64("similarity", dup.Similarity),
		)
		return Outcome{Status: model.StatusSkippedDuplicate, Stage: StageDedup, Dedup: dup}
	}

	entityID, err := p.persister.Persist(ctx, Candidate{
		Page:           page,
		Classification: cls,
		Description:    desc,
		Structured:     st,
		Embedding:      vec,
	})
	if err != nil {
		if IsConflict(err) {
			log.Info("entity already stored")
			return Outcome{Status: model.StatusSkippedExisting, Stage: StagePersist}
		}
		return failed(StagePersist, ErrPersistence, err)
	}

	return Outcome{Status: model.StatusSuccess, Stage: StageDone, EntityID: entityID}
}

func failed(stage Stage, kind, err error) Outcome {
	var se *StageError
	if !errors.As(err, &se) {
		se = stageErr(stage, kind, err)
	}
	return Outcome{Status: model.StatusFailed, Stage: stage, Err: se}
}
