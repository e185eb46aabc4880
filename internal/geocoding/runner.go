package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/checkpoint"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/monitoring"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

// PassName labels the geocode pass in logs, checkpoints and alerts.
const PassName = "geocode"

// Store is the persistence the geocode pass needs.
type Store interface {
	ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error)
	UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error
}

// Options tune one geocode run.
type Options struct {
	Limit  int
	Resume bool
	// Test resolves addresses but writes nothing.
	Test             bool
	ProgressInterval int
	ETAInterval      int
	// WriteRetry governs coordinate writes. Zero means three attempts one
	// second apart.
	WriteRetry resilience.RetryConfig
}

// Runner drives the geocode pass.
type Runner struct {
	store       Store
	resolver    *Resolver
	checkpoints *checkpoint.Manager
	pacer       *resilience.Pacer
	alerter     *monitoring.Alerter
	opts        Options
}

// NewRunner builds a Runner. pacer and alerter may be nil.
func NewRunner(st Store, resolver *Resolver, cp *checkpoint.Manager, pacer *resilience.Pacer, alerter *monitoring.Alerter, opts Options) (*Runner, error) {
	switch {
	case st == nil:
		return nil, eris.New("geocoding: store is required")
	case resolver == nil:
		return nil, eris.New("geocoding: resolver is required")
	case cp == nil:
		return nil, eris.New("geocoding: checkpoint manager is required")
	}
	if pacer == nil {
		pacer = resilience.NewPacer(0)
	}
	if opts.WriteRetry.MaxAttempts == 0 {
		opts.WriteRetry = resilience.FixedRetry(3, time.Second)
	}
	return &Runner{store: st, resolver: resolver, checkpoints: cp, pacer: pacer, alerter: alerter, opts: opts}, nil
}

// Run geocodes every entity that has an address but no position. Misses and
// errors are counted as failures and not retried within the run; a denied
// key aborts it.
func (r *Runner) Run(ctx context.Context) (*model.Stats, error) {
	log := zap.L().With(zap.String("pass", PassName))

	entities, err := r.store.ListMissingCoordinates(ctx, r.opts.Limit)
	if err != nil {
		return nil, err
	}

	stats := model.Stats{StartedAt: time.Now().UTC()}
	if r.opts.Resume {
		cp, err := r.checkpoints.Load()
		if err != nil {
			return nil, err
		}
		if cp != nil {
			stats = cp.Stats
			stats.StartedAt = time.Now().UTC()
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

	reporterOpts := []monitoring.ReporterOption{monitoring.WithIntervals(r.opts.ProgressInterval, r.opts.ETAInterval)}
	if r.alerter != nil {
		reporterOpts = append(reporterOpts, monitoring.WithAlerter(r.alerter))
	}
	reporter := monitoring.NewReporter(PassName, stats.Total, reporterOpts...)

	log.Info("run started", zap.Int("to_process", len(entities)), zap.Bool("test", r.opts.Test))

	lastID := ""
	for i := range entities {
		e := &entities[i]
		if err := r.pacer.Wait(ctx); err != nil {
			return r.interrupt(ctx, reporter, &stats, lastID)
		}

		err := r.process(ctx, e)
		if ctx.Err() != nil {
			return r.interrupt(ctx, reporter, &stats, lastID)
		}
		if resilience.IsAuth(err) {
			log.Error("credentials rejected, aborting run", zap.String("entity_id", e.ID), zap.Error(err))
			return r.halt(reporter, &stats, lastID, eris.Wrap(err, "geocoding: credentials rejected"))
		}

		stats.Processed++
		stats.APICalls++
		switch {
		case err == nil:
			stats.Success++
			stats.Fixed++
		case errors.Is(err, ErrNoMatch), errors.Is(err, ErrOutOfRegion):
			stats.NoMatch++
			stats.Failed++
			log.Debug("address not placed", zap.String("entity_id", e.ID), zap.String("address", e.Address), zap.Error(err))
		default:
			stats.Failed++
			log.Warn("geocode failed", zap.String("entity_id", e.ID), zap.Error(err))
		}
		lastID = e.ID

		if _, err := r.checkpoints.Tick(stats, lastID); err != nil {
			log.Warn("checkpoint write failed", zap.Error(err))
		}
		reporter.Observe(ctx, stats)
	}

	if err := r.checkpoints.Flush(stats, lastID); err != nil {
		log.Warn("final checkpoint write failed", zap.Error(err))
	}
	reporter.Final(stats, false)
	return &stats, nil
}

func (r *Runner) process(ctx context.Context, e *model.Entity) error {
	lat, lng, err := r.resolver.Resolve(ctx, e.Address)
	if err != nil {
		return err
	}
	if r.opts.Test {
		zap.L().Info("test mode, not writing",
			zap.String("entity_id", e.ID),
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
		)
		return nil
	}
	return resilience.Do(ctx, r.opts.WriteRetry, func(ctx context.Context) error {
		return r.store.UpdateCoordinates(ctx, e.ID, lat, lng)
	})
}

func (r *Runner) interrupt(ctx context.Context, reporter *monitoring.Reporter, stats *model.Stats, lastID string) (*model.Stats, error) {
	return r.halt(reporter, stats, lastID, ctx.Err())
}

func (r *Runner) halt(reporter *monitoring.Reporter, stats *model.Stats, lastID string, err error) (*model.Stats, error) {
	if ferr := r.checkpoints.Flush(*stats, lastID); ferr != nil {
		zap.L().Error("checkpoint flush on interrupt failed", zap.Error(ferr))
	}
	reporter.Final(*stats, true)
	return stats, err
}
