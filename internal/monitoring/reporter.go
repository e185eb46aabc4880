package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

const (
	DefaultProgressEvery = 25
	DefaultETAEvery      = 100
)

// Reporter logs progress for one pass at fixed item intervals and fires each
// alert type at most once per run.
type Reporter struct {
	pass     string
	total    int
	every    int
	etaEvery int
	cost     func() float64
	alerter  *Alerter

	start time.Time
	now   func() time.Time
	fired map[AlertType]bool
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithIntervals overrides the progress and ETA intervals.
func WithIntervals(every, etaEvery int) ReporterOption {
	return func(r *Reporter) {
		if every > 0 {
			r.every = every
		}
		if etaEvery > 0 {
			r.etaEvery = etaEvery
		}
	}
}

// WithCost sets the spend source reported with progress.
func WithCost(fn func() float64) ReporterOption {
	return func(r *Reporter) { r.cost = fn }
}

// WithAlerter evaluates alerts on every progress line.
func WithAlerter(a *Alerter) ReporterOption {
	return func(r *Reporter) { r.alerter = a }
}

// NewReporter starts the clock for a pass over total items.
func NewReporter(pass string, total int, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		pass:     pass,
		total:    total,
		every:    DefaultProgressEvery,
		etaEvery: DefaultETAEvery,
		cost:     func() float64 { return 0 },
		now:      time.Now,
		fired:    make(map[AlertType]bool),
	}
	for _, o := range opts {
		o(r)
	}
	r.start = r.now()
	return r
}

// Snapshot returns the current view of the pass.
func (r *Reporter) Snapshot(stats model.Stats) Snapshot {
	now := r.now()
	return Collect(r.pass, r.total, stats, r.cost(), now.Sub(r.start), now)
}

// Observe is called after each item. It reports whether a progress line was
// logged.
func (r *Reporter) Observe(ctx context.Context, stats model.Stats) bool {
	n := stats.Processed
	if n == 0 || n%r.every != 0 {
		return false
	}

	snap := r.Snapshot(stats)
	fields := []zap.Field{
		zap.String("pass", r.pass),
		zap.Int("processed", snap.Processed),
		zap.Int("total", snap.Total),
		zap.Int("success", snap.Success),
		zap.Int("skipped", snap.Skipped),
		zap.Int("failed", snap.Failed),
		zap.Float64("cost_usd", snap.CostUSD),
		zap.Float64("items_per_min", snap.RatePerMin),
	}
	if n%r.etaEvery == 0 {
		fields = append(fields, zap.Duration("eta", snap.ETA.Round(time.Second)))
	}
	zap.L().Info("progress", fields...)

	if r.alerter != nil {
		var fresh []Alert
		for _, a := range r.alerter.Evaluate(snap) {
			if !r.fired[a.Type] {
				r.fired[a.Type] = true
				fresh = append(fresh, a)
			}
		}
		if len(fresh) > 0 {
			r.alerter.SendAlerts(ctx, fresh)
		}
	}
	return true
}

// Final logs the end-of-pass summary and returns it.
func (r *Reporter) Final(stats model.Stats, interrupted bool) Snapshot {
	snap := r.Snapshot(stats)
	zap.L().Info("pass finished",
		zap.String("pass", r.pass),
		zap.Bool("interrupted", interrupted),
		zap.Int("processed", snap.Processed),
		zap.Int("total", snap.Total),
		zap.Int("success", snap.Success),
		zap.Int("skipped", snap.Skipped),
		zap.Int("failed", snap.Failed),
		zap.Float64("cost_usd", snap.CostUSD),
		zap.Duration("elapsed", snap.Elapsed.Round(time.Second)),
	)
	return snap
}
