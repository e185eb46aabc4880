package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Tracker accumulates the spend of one run.
type Tracker struct {
	calc *Calculator

	mu         sync.Mutex
	llmUSD     float64
	llmCalls   int
	embeds     int
	scrapes    int
	unpriced   map[string]bool
	byModelUSD map[string]float64
}

// NewTracker creates a Tracker pricing usage with calc.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{
		calc:       calc,
		unpriced:   make(map[string]bool),
		byModelUSD: make(map[string]float64),
	}
}

// AddCompletion records one chat completion and returns its cost.
func (t *Tracker) AddCompletion(model string, input, output int) float64 {
	usd := t.calc.Tokens(model, input, output)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmCalls++
	t.llmUSD += usd
	t.byModelUSD[model] += usd
	if !t.calc.Priced(model) && !t.unpriced[model] {
		t.unpriced[model] = true
		zap.L().Warn("cost: no rate for model, counting as free", zap.String("model", model))
	}
	return usd
}

// AddEmbedding records one embedding call.
func (t *Tracker) AddEmbedding() {
	t.mu.Lock()
	t.embeds++
	t.mu.Unlock()
}

// AddScrape records one fetch request.
func (t *Tracker) AddScrape() {
	t.mu.Lock()
	t.scrapes++
	t.mu.Unlock()
}

// Total returns the spend so far in USD.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.llmUSD + t.calc.Embedding(t.embeds) + t.calc.Scrape(t.scrapes)
}

// Summary is a point-in-time view of the tracker.
type Summary struct {
	LLMCalls   int
	LLMUSD     float64
	Embeddings int
	Scrapes    int
	TotalUSD   float64
	ByModelUSD map[string]float64
}

// Summary returns the counters and spend so far.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	byModel := make(map[string]float64, len(t.byModelUSD))
	for k, v := range t.byModelUSD {
		byModel[k] = v
	}
	return Summary{
		LLMCalls:   t.llmCalls,
		LLMUSD:     t.llmUSD,
		Embeddings: t.embeds,
		Scrapes:    t.scrapes,
		TotalUSD:   t.llmUSD + t.calc.Embedding(t.embeds) + t.calc.Scrape(t.scrapes),
		ByModelUSD: byModel,
	}
}
