// Package cost prices LLM, embedding and fetch usage.
package cost

import (
	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
)

// Rates holds pricing for every metered service.
type Rates struct {
	// Models is keyed by model id; prices are USD per million tokens.
	Models      map[string]ModelRate `yaml:"models" mapstructure:"models"`
	PerURL      TierRates            `yaml:"per_url" mapstructure:"per_url"`
	ScrapingBee ScrapeRate           `yaml:"scrapingbee" mapstructure:"scrapingbee"`
	// EmbeddingPerCall is the flat cost of one embedding request.
	EmbeddingPerCall float64 `yaml:"embedding_per_call" mapstructure:"embedding_per_call"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// TierRates is the flat per-URL LLM estimate for each model tier.
type TierRates struct {
	Economy float64
	Smart   float64
	Premium float64
}

// ScrapeRate prices the fetch proxy: requests beyond the free allowance are
// billed per request.
type ScrapeRate struct {
	FreeRequests int
	PerRequest   float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of one chat completion. Unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Priced reports whether the model has a token rate.
func (c *Calculator) Priced(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// Embedding returns the flat cost of n embedding calls.
func (c *Calculator) Embedding(n int) float64 {
	return float64(n) * c.rates.EmbeddingPerCall
}

// Scrape returns the overage cost of n fetch requests.
func (c *Calculator) Scrape(n int) float64 {
	billable := n - c.rates.ScrapingBee.FreeRequests
	if billable <= 0 {
		return 0
	}
	return float64(billable) * c.rates.ScrapingBee.PerRequest
}

// PerURL returns the flat LLM estimate for one URL at tier.
func (c *Calculator) PerURL(tier config.ModelTier) float64 {
	switch tier {
	case config.TierEconomy:
		return c.rates.PerURL.Economy
	case config.TierPremium:
		return c.rates.PerURL.Premium
	default:
		return c.rates.PerURL.Smart
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
			"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
			"gpt-4":                      {Input: 30.00, Output: 60.00},
		},
		PerURL:           TierRates{Economy: 0.02, Smart: 0.05, Premium: 0.10},
		ScrapingBee:      ScrapeRate{FreeRequests: 1000, PerRequest: 0.01},
		EmbeddingPerCall: 0.0001,
	}
}

// RatesFromConfig overlays configured pricing on DefaultRates.
func RatesFromConfig(p config.PricingConfig) Rates {
	r := DefaultRates()
	for model, mp := range p.Anthropic {
		r.Models[model] = ModelRate{Input: mp.Input, Output: mp.Output}
	}
	if p.PerURL != (config.TierPricing{}) {
		r.PerURL = TierRates{Economy: p.PerURL.Economy, Smart: p.PerURL.Smart, Premium: p.PerURL.Premium}
	}
	if p.ScrapingBee.PerRequest > 0 {
		r.ScrapingBee = ScrapeRate{FreeRequests: p.ScrapingBee.FreeRequests, PerRequest: p.ScrapingBee.PerRequest}
	}
	if p.Embedding > 0 {
		r.EmbeddingPerCall = p.Embedding
	}
	return r
}
