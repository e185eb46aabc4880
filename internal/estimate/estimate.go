// Package estimate forecasts the yield, spend and duration of a crawl before
// it starts.
package estimate

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
)

const (
	// POIRatio is the share of source pages expected to describe a place.
	POIRatio = 0.4
	// PerURL is the expected wall time spent on one source page.
	PerURL = 15 * time.Second
)

// Estimate is the pre-run forecast for a crawl.
type Estimate struct {
	Tier          config.ModelTier `json:"tier"`
	Scope         string           `json:"scope"`
	Breakdown     map[string]int   `json:"url_breakdown"`
	TotalURLs     int              `json:"total_urls"`
	EstimatedPOIs int              `json:"estimated_pois"`
	ScrapeUSD     float64          `json:"scrape_usd"`
	LLMUSD        float64          `json:"llm_usd"`
	TotalUSD      float64          `json:"total_usd"`
	Duration      time.Duration    `json:"duration"`
}

// CostPerPOI returns the expected spend per stored place, or false when no
// place is expected.
func (e *Estimate) CostPerPOI() (float64, bool) {
	if e.EstimatedPOIs == 0 {
		return 0, false
	}
	return e.TotalUSD / float64(e.EstimatedPOIs), true
}

// Compute builds an Estimate from per-scope URL counts.
func Compute(breakdown map[string]int, scope string, tier config.ModelTier, calc *cost.Calculator) (*Estimate, error) {
	if calc == nil {
		return nil, eris.New("estimate: calculator is required")
	}

	total := 0
	for name, n := range breakdown {
		if n < 0 {
			return nil, eris.Errorf("estimate: negative URL count for %s", name)
		}
		total += n
	}

	scrape := calc.Scrape(total)
	llmCost := float64(total) * calc.PerURL(tier)

	return &Estimate{
		Tier:          tier,
		Scope:         scope,
		Breakdown:     breakdown,
		TotalURLs:     total,
		EstimatedPOIs: int(float64(total) * POIRatio),
		ScrapeUSD:     scrape,
		LLMUSD:        llmCost,
		TotalUSD:      scrape + llmCost,
		Duration:      time.Duration(total) * PerURL,
	}, nil
}

// Render writes the human-readable report printed before a crawl.
func Render(w io.Writer, e *Estimate) error {
	perPOI := "N/A"
	if v, ok := e.CostPerPOI(); ok {
		perPOI = FormatUSD(v)
	}

	rule := "============================================================"
	_, err := fmt.Fprintf(w,
		"\n%s\nCRAWL ESTIMATE\n%s\nModel tier:      %s\nScope:           %s\nURLs to process: %d\nEstimated POIs:  %d\nEstimated time:  %s\nFetch cost:      %s\nLLM cost:        %s\nTotal cost:      %s\nCost per POI:    %s\n%s\n\n",
		rule, rule,
		e.Tier, e.Scope,
		e.TotalURLs, e.EstimatedPOIs,
		FormatDuration(e.Duration),
		FormatUSD(e.ScrapeUSD), FormatUSD(e.LLMUSD), FormatUSD(e.TotalUSD),
		perPOI,
		rule,
	)
	if err != nil {
		return eris.Wrap(err, "estimate: render")
	}
	return nil
}

// FormatUSD formats a dollar amount in human-readable form.
func FormatUSD(amount float64) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.1fM", amount/1_000_000)
	case amount >= 10_000:
		return fmt.Sprintf("$%.0fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.2f", amount)
	}
}

// FormatDuration renders whole minutes, or hours and minutes past an hour.
func FormatDuration(d time.Duration) string {
	mins := int(math.Round(d.Minutes()))
	if mins < 60 {
		return fmt.Sprintf("%d minutes", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}
