package resilience

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a fixed minimum gap between consecutive items. Unlike a
// token bucket it never bursts: item N+1 starts no sooner than interval after
// item N started. Callers Wait before every item, the first included.
type Pacer struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewPacer derives the gap from a requests-per-second budget. rps <= 0
// disables pacing.
func NewPacer(rps float64) *Pacer {
	var interval time.Duration
	if rps > 0 {
		interval = time.Duration(float64(time.Second) / rps)
	}
	return &Pacer{interval: interval, now: time.Now}
}

// NewPacerInterval builds a pacer from an explicit gap.
func NewPacerInterval(d time.Duration) *Pacer {
	return &Pacer{interval: d, now: time.Now}
}

// Interval returns the configured gap.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Wait blocks until the gap since the previous Wait has elapsed, then marks
// the start of a new item. The first call never blocks.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	var wait time.Duration
	if !p.last.IsZero() && p.interval > 0 {
		wait = p.interval - p.now().Sub(p.last)
	}
	p.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
	return nil
}
