// Package enrich links stored places to their Foursquare counterpart and
// copies over ratings, hours, contact details and photos.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/monitoring"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

// Pass names, also used for checkpoint files.
const (
	PassName    = "enrich"
	FixPassName = "enrich_fix"
)

// Result is the decision reached for one entity.
type Result string

const (
	ResultMatched   Result = "matched"
	ResultNoMatch   Result = "no_match"
	ResultFixed     Result = "fixed"
	ResultUnchanged Result = "unchanged"
	ResultDuplicate Result = "duplicate"
	ResultFailed    Result = "failed"
)

// Store is the persistence the enrichment passes need.
type Store interface {
	ListForEnrichment(ctx context.Context, f store.EnrichmentFilter) ([]model.Entity, error)
	UpdateEnrichment(ctx context.Context, id string, u store.EnrichmentUpdate) error
	SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error
	DeleteImages(ctx context.Context, pathPrefix string) (int, error)
	SaveImages(ctx context.Context, images []model.Image) error
}

// Deps are the collaborators of a Runner. Pacer and Alerter are optional.
type Deps struct {
	Store       Store
	Searcher    *Searcher
	Reranker    *Reranker
	Checkpoints *checkpoint.Manager
	Pacer       *resilience.Pacer
	Alerter     *monitoring.Alerter
}

// Options tune one enrichment run.
type Options struct {
	// Fix re-checks entities that are already linked.
	Fix bool
	// Test runs searches and reranking but writes nothing.
	Test             bool
	Force            bool
	Resume           bool
	Limit            int
	ProgressInterval int
	ETAInterval      int
}

// Runner drives one enrichment or fix pass.
type Runner struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewRunner validates deps.
func NewRunner(deps Deps, opts Options) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, eris.New("enrich: store is required")
	case deps.Searcher == nil:
		return nil, eris.New("enrich: searcher is required")
	case deps.Reranker == nil:
		return nil, eris.New("enrich: reranker is required")
	case deps.Checkpoints == nil:
		return nil, eris.New("enrich: checkpoint manager is required")
	}
	if deps.Pacer == nil {
		deps.Pacer = resilience.NewPacer(0)
	}
	return &Runner{deps: deps, opts: opts, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *Runner) pass() string {
	if r.opts.Fix {
		return FixPassName
	}
	return PassName
}

// Run processes the selected entities, newest first. On cancellation the
// checkpoint is flushed and ctx.Err() is returned with the stats so far.
// Rejected credentials end the run the same way, leaving the entity that hit
// them untouched.
func (r *Runner) Run(ctx context.Context) (*model.Stats, error) {
	pass := r.pass()
	log := zap.L().With(zap.String("pass", pass))

	entities, err := r.deps.Store.ListForEnrichment(ctx, store.EnrichmentFilter{
		Provider: model.ProviderFoursquare,
		Linked:   r.opts.Fix,
		Force:    r.opts.Force,
		Limit:    r.opts.Limit,
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
			entities = resumeEntities(entities, cp.LastProcessedID)
			log.Info("resuming from checkpoint",
				zap.String("last_processed_id", cp.LastProcessedID),
				zap.Int("already_processed", stats.Processed),
			)
		}
	}
	stats.Total = stats.Processed + len(entities)
	baseCalls := stats.APICalls

	reporterOpts := []monitoring.ReporterOption{monitoring.WithIntervals(r.opts.ProgressInterval, r.opts.ETAInterval)}
	if r.deps.Alerter != nil {
		reporterOpts = append(reporterOpts, monitoring.WithAlerter(r.deps.Alerter))
	}
	reporter := monitoring.NewReporter(pass, stats.Total, reporterOpts...)

	log.Info("run started", zap.Int("to_process", len(entities)), zap.Bool("test", r.opts.Test))

	lastID := ""
	for i := range entities {
		e := &entities[i]
		if err := r.deps.Pacer.Wait(ctx); err != nil {
			return r.interrupt(ctx, reporter, &stats, lastID)
		}

		res, n, err := r.Process(ctx, e)
		if ctx.Err() != nil {
			return r.interrupt(ctx, reporter, &stats, lastID)
		}
		if resilience.IsAuth(err) {
			log.Error("credentials rejected, aborting run", zap.String("entity_id", e.ID), zap.Error(err))
			return r.halt(reporter, &stats, lastID, eris.Wrap(err, "enrich: credentials rejected"))
		}

		record(&stats, res)
		stats.ImagesInvalidated += n
		stats.APICalls = baseCalls + r.deps.Searcher.Calls()
		lastID = e.ID

		if err != nil {
			log.Warn("entity failed", zap.String("entity_id", e.ID), zap.String("name", e.Name), zap.Error(err))
		}

		if _, err := r.deps.Checkpoints.Tick(stats, lastID); err != nil {
			log.Warn("checkpoint write failed", zap.Error(err))
		}
		reporter.Observe(ctx, stats)
	}

	if err := r.deps.Checkpoints.Flush(stats, lastID); err != nil {
		log.Warn("final checkpoint write failed", zap.Error(err))
	}
	reporter.Final(stats, false)
	log.Info("enrichment summary",
		zap.Int("matched", stats.Matched),
		zap.Int("no_match", stats.NoMatch),
		zap.Int("fixed", stats.Fixed),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed", stats.Failed),
		zap.Int("images_invalidated", stats.ImagesInvalidated),
		zap.Int("api_calls", stats.APICalls),
	)
	return &stats, nil
}

func (r *Runner) interrupt(ctx context.Context, reporter *monitoring.Reporter, stats *model.Stats, lastID string) (*model.Stats, error) {
	return r.halt(reporter, stats, lastID, ctx.Err())
}

func (r *Runner) halt(reporter *monitoring.Reporter, stats *model.Stats, lastID string, err error) (*model.Stats, error) {
	if ferr := r.deps.Checkpoints.Flush(*stats, lastID); ferr != nil {
		zap.L().Error("checkpoint flush on interrupt failed", zap.Error(ferr))
	}
	reporter.Final(*stats, true)
	return stats, err
}

// Process enriches or re-checks one entity. It returns the result, the
// number of stored images invalidated and the error behind a failure.
func (r *Runner) Process(ctx context.Context, e *model.Entity) (Result, int, error) {
	log := zap.L().With(zap.String("entity_id", e.ID), zap.String("name", e.Name))

	places, err := r.deps.Searcher.Candidates(ctx, e)
	if resilience.IsAuth(err) {
		return ResultFailed, 0, eris.Wrap(err, "enrich: search")
	}
	if err != nil {
		r.setStatus(ctx, e.ID, model.EnrichmentFailed)
		return ResultFailed, 0, eris.Wrap(err, "enrich: search")
	}
	log.Debug("candidates found", zap.Int("count", len(places)))

	chosen, err := r.deps.Reranker.Select(ctx, e, places)
	if err != nil {
		return ResultFailed, 0, eris.Wrap(err, "enrich: rerank")
	}
	if chosen == nil {
		if r.opts.Fix {
			return ResultFailed, 0, eris.New("enrich: no candidate confirmed for linked entity")
		}
		r.setStatus(ctx, e.ID, model.EnrichmentNoMatch)
		return ResultNoMatch, 0, nil
	}

	if r.opts.Fix && chosen.FsqID == e.ExternalID(model.ProviderFoursquare) {
		log.Debug("existing link confirmed")
		return ResultUnchanged, 0, nil
	}

	photos, err := r.deps.Searcher.Photos(ctx, chosen.FsqID)
	if err != nil {
		// Photos are optional; the link itself still holds.
		log.Warn("photo fetch failed", zap.String("fsq_id", chosen.FsqID), zap.Error(err))
		photos = nil
	}

	u := BuildUpdate(e, chosen, photos, r.now())
	if r.opts.Test {
		log.Info("test mode, not writing",
			zap.String("fsq_id", chosen.FsqID),
			zap.String("match_name", chosen.Name),
			zap.Int("photos", len(photos)),
		)
		if r.opts.Fix {
			return ResultFixed, 0, nil
		}
		return ResultMatched, 0, nil
	}

	if err := r.deps.Store.UpdateEnrichment(ctx, e.ID, u); err != nil {
		if store.IsConflict(err) {
			log.Info("place already linked to another entity", zap.String("fsq_id", chosen.FsqID))
			r.setStatus(ctx, e.ID, model.EnrichmentDuplicate)
			return ResultDuplicate, 0, nil
		}
		r.setStatus(ctx, e.ID, model.EnrichmentFailed)
		return ResultFailed, 0, eris.Wrap(err, "enrich: update")
	}

	invalidated, err := r.replaceImages(ctx, e.ID, photos)
	if err != nil {
		log.Warn("image refresh failed", zap.Error(err))
	}

	if r.opts.Fix {
		log.Info("link corrected", zap.String("old_fsq_id", e.ExternalID(model.ProviderFoursquare)), zap.String("fsq_id", chosen.FsqID))
		return ResultFixed, invalidated, nil
	}
	return ResultMatched, 0, nil
}

// replaceImages drops every stored image of the entity and stores the new
// photo references. It returns how many images were removed.
func (r *Runner) replaceImages(ctx context.Context, entityID string, photos []foursquare.Photo) (int, error) {
	n, err := r.deps.Store.DeleteImages(ctx, store.ImagePrefix(entityID))
	if err != nil {
		return 0, err
	}
	if len(photos) == 0 {
		return n, nil
	}
	return n, r.deps.Store.SaveImages(ctx, Images(entityID, photos))
}

func (r *Runner) setStatus(ctx context.Context, id string, status model.EnrichmentStatus) {
	if r.opts.Test {
		return
	}
	if err := r.deps.Store.SetEnrichmentStatus(ctx, id, status); err != nil {
		zap.L().Warn("failed to set enrichment status",
			zap.String("entity_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// MarkDuplicates flips every entity flagged as a directory duplicate to
// ignored so later passes leave it alone.
func MarkDuplicates(ctx context.Context, s interface {
	MarkDuplicatesIgnored(ctx context.Context) (int, error)
}) (int, error) {
	n, err := s.MarkDuplicatesIgnored(ctx)
	if err != nil {
		return 0, err
	}
	zap.L().Info("duplicates marked ignored", zap.Int("count", n))
	return n, nil
}

func record(s *model.Stats, res Result) {
	s.Processed++
	switch res {
	case ResultMatched:
		s.Matched++
		s.Success++
	case ResultFixed:
		s.Fixed++
		s.Success++
	case ResultNoMatch:
		s.NoMatch++
		s.Skipped++
	case ResultUnchanged:
		s.Unchanged++
		s.Skipped++
	case ResultDuplicate:
		s.Duplicates++
		s.Skipped++
	case ResultFailed:
		s.Failed++
	}
}

func resumeEntities(entities []model.Entity, lastID string) []model.Entity {
	ids := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
	}
	rest := checkpoint.ResumeAfter(ids, lastID)
	return entities[len(entities)-len(rest):]
}
