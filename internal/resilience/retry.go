package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig describes how a call to an external service is retried.
type RetryConfig struct {
	// MaxAttempts includes the first call; 1 means no retry.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay uniformly by +/- this share.
	JitterFraction float64

	// ShouldRetry replaces IsTransient as the retry predicate.
	ShouldRetry func(err error) bool
	// OnRetry is called with the 1-based number of the failed attempt.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the policy for ScrapingBee, LLM and Foursquare calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// FixedRetry tries up to attempts times with the same pause in between,
// whatever the error. The geocoder uses it.
func FixedRetry(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: delay,
		MaxBackoff:     delay,
		Multiplier:     1,
		ShouldRetry:    func(error) bool { return true },
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	c.JitterFraction = math.Max(c.JitterFraction, 0)
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// backoff is the pause after the n-th failure (0-based), before jitter and
// any Retry-After hint.
func (c RetryConfig) backoff(n int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(n))
	return time.Duration(math.Min(d, float64(c.MaxBackoff)))
}

func (c RetryConfig) jittered(d time.Duration) time.Duration {
	if c.JitterFraction == 0 {
		return d
	}
	spread := float64(d) * c.JitterFraction
	return time.Duration(math.Max(float64(d)+spread*(2*rand.Float64()-1), 0))
}

// Do calls fn until it succeeds, the error is not retryable, attempts run
// out or ctx ends. It returns the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value. On failure the zero value is
// returned.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	for n := 0; ; n++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		last := n+1 >= cfg.MaxAttempts
		if last || ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(n+1, err)
		}
		wait := max(cfg.jittered(cfg.backoff(n)), retryAfter(err))
		if werr := pause(ctx, wait); werr != nil {
			return zero, err
		}
	}
}

// pause blocks for d or until ctx is done, whichever is first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryLogger logs each retry at warn level.
func RetryLogger(service, operation string) func(int, error) {
	log := zap.L().With(zap.String("service", service), zap.String("operation", operation))
	return func(attempt int, err error) {
		log.Warn("retrying after failure", zap.Int("attempt", attempt), zap.Error(err))
	}
}
