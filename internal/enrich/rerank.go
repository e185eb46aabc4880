package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

const (
	rerankTemperature = 0.1
	rerankMaxTokens   = 10
)

const rerankSystemPrompt = `You match Tokyo places against Foursquare search results. Pick the result that is the same physical place, not a place with a similar name nearby. Answer with the index number only, or -1 if none of them is the same place.`

var indexPattern = regexp.MustCompile(`-?\d+`)

// Reranker picks the best candidate with an LLM. The LLM is optional: when
// it fails or the breaker is open, the first search result wins.
type Reranker struct {
	llm     llm.Completer
	model   string
	breaker *resilience.CircuitBreaker
}

// NewReranker creates a Reranker. A nil breaker gets a default one.
func NewReranker(c llm.Completer, model string, breaker *resilience.CircuitBreaker) *Reranker {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "rerank"})
	}
	return &Reranker{llm: c, model: model, breaker: breaker}
}

// Select returns the chosen place, or nil when there is nothing to choose or
// the LLM says none of the places match. It fails only when the credentials
// are rejected; any other LLM failure falls back to the first place.
func (r *Reranker) Select(ctx context.Context, e *model.Entity, places []foursquare.Place) (*foursquare.Place, error) {
	switch len(places) {
	case 0:
		return nil, nil
	case 1:
		return &places[0], nil
	}

	log := zap.L().With(zap.String("entity_id", e.ID), zap.String("name", e.Name))

	if r.llm == nil {
		return &places[0], nil
	}

	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*llm.Response, error) {
		return r.llm.Complete(ctx, llm.Request{
			Model:       r.model,
			System:      rerankSystemPrompt,
			User:        rerankPrompt(e, places),
			Temperature: rerankTemperature,
			MaxTokens:   rerankMaxTokens,
		})
	})
	if resilience.IsAuth(err) {
		return nil, err
	}
	if err != nil {
		log.Warn("rerank failed, using first result", zap.Error(err))
		return &places[0], nil
	}

	idx, ok := parseIndex(resp.Text)
	switch {
	case !ok || idx >= len(places) || idx < -1:
		log.Warn("unusable rerank answer, using first result", zap.String("answer", resp.Text))
		return &places[0], nil
	case idx == -1:
		log.Debug("rerank found no matching place")
		return nil, nil
	}
	return &places[idx], nil
}

func parseIndex(text string) (int, bool) {
	m := indexPattern.FindString(strings.TrimSpace(text))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func rerankPrompt(e *model.Entity, places []foursquare.Place) string {
	var b strings.Builder
	b.WriteString("Candidates:\n")
	for i, p := range places {
		addr := placeAddress(p)
		if addr == "" {
			addr = "N/A"
		}
		cats := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories {
			cats = append(cats, c.Name)
		}
		catText := strings.Join(cats, ", ")
		if catText == "" {
			catText = "N/A"
		}
		dist := "N/A"
		if p.Distance != nil {
			dist = strconv.Itoa(*p.Distance) + "m"
		}
		fmt.Fprintf(&b, "%d. %s | address: %s | categories: %s | distance: %s | verified: %t\n",
			i, p.Name, addr, catText, dist, p.Verified)
	}

	addr := e.Address
	if addr == "" {
		addr = "N/A"
	}
	fmt.Fprintf(&b, "\nPlace to match:\nName: %s\nAddress: %s\n\nIndex of the matching candidate (or -1):", e.Name, addr)
	return b.String()
}
