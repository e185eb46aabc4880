// Package monitoring reports run progress and raises alerts when a run goes
// wrong.
package monitoring

import (
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// Snapshot is a point-in-time view of one pass.
type Snapshot struct {
	Pass       string        `json:"pass"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Success    int           `json:"success"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	FailRate   float64       `json:"fail_rate"`
	CostUSD    float64       `json:"cost_usd"`
	Elapsed    time.Duration `json:"elapsed"`
	RatePerMin float64       `json:"rate_per_min"`
	ETA        time.Duration `json:"eta"`
	TakenAt    time.Time     `json:"taken_at"`
}

// Collect builds a Snapshot from running stats.
func Collect(pass string, total int, stats model.Stats, costUSD float64, elapsed time.Duration, now time.Time) Snapshot {
	snap := Snapshot{
		Pass:      pass,
		Total:     total,
		Processed: stats.Processed,
		Success:   stats.Success,
		Skipped:   stats.SkippedTotal(),
		Failed:    stats.Failed,
		CostUSD:   costUSD,
		Elapsed:   elapsed,
		TakenAt:   now.UTC(),
	}
	if stats.Processed > 0 {
		snap.FailRate = float64(stats.Failed) / float64(stats.Processed)
	}
	if mins := elapsed.Minutes(); mins > 0 {
		snap.RatePerMin = float64(stats.Processed) / mins
	}
	if stats.Processed > 0 && total > stats.Processed {
		perItem := elapsed / time.Duration(stats.Processed)
		snap.ETA = perItem * time.Duration(total-stats.Processed)
	}
	return snap
}
