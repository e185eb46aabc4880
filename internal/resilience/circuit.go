// Package resilience holds the retry, pacing and circuit breaking helpers used
// by every outbound call.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var stateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold is the run of consecutive failures that opens the
	// breaker. Default 5.
	FailureThreshold int
	// ResetTimeout is how long it stays open before letting one trial call
	// through. Default 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker lets callers of an optional collaborator, such as the LLM
// reranker, skip straight to their fallback after repeated failures.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	streak    int
	openUntil time.Time // zero while closed
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// ExecuteVal calls fn unless the breaker is open. A cancelled context is not
// held against the collaborator.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cb.State() == CircuitOpen {
		return zero, ErrCircuitOpen
	}
	v, err := fn(ctx)
	if errors.Is(err, context.Canceled) {
		return v, err
	}
	cb.record(err)
	return v, err
}

// State reports the position; an open breaker whose timeout has passed
// reads as half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() CircuitState {
	switch {
	case cb.openUntil.IsZero():
		return CircuitClosed
	case cb.now().Before(cb.openUntil):
		return CircuitOpen
	default:
		return CircuitHalfOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	before := cb.stateLocked()
	if err == nil {
		cb.streak = 0
		cb.openUntil = time.Time{}
	} else {
		cb.streak++
		if before == CircuitHalfOpen || cb.streak >= cb.cfg.FailureThreshold {
			cb.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
		}
	}

	if after := cb.stateLocked(); after != before {
		zap.L().Info("circuit breaker state change",
			zap.String("breaker", cb.cfg.Name),
			zap.Stringer("from", before),
			zap.Stringer("to", after),
			zap.Int("consecutive_failures", cb.streak),
		)
	}
}
