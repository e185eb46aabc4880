// Package llm exposes one text-completion capability over the configured
// model provider.
package llm

import (
	"context"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON object when it supports it.
	JSON bool
}

// Response is the provider's answer.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer produces text from a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Metered wraps a Completer so every successful call is priced on a cost
// tracker.
type Metered struct {
	next  Completer
	costs *cost.Tracker
}

// NewMetered returns a Completer that records usage on costs.
func NewMetered(next Completer, costs *cost.Tracker) *Metered {
	return &Metered{next: next, costs: costs}
}

func (m *Metered) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	m.costs.AddCompletion(model, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

// Retrying wraps a Completer with bounded retries on transient failures.
type Retrying struct {
	next Completer
	cfg  resilience.RetryConfig
}

// NewRetrying returns a Completer that retries transient errors per cfg.
func NewRetrying(next Completer, cfg resilience.RetryConfig) *Retrying {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("llm", "complete")
	}
	return &Retrying{next: next, cfg: cfg}
}

func (r *Retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (*Response, error) {
		return r.next.Complete(ctx, req)
	})
}

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 60 * time.Second
