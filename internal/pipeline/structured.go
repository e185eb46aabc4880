package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

const (
	structureTemperature = 0.3
	structureMaxTokens   = 300
	structureContextLen  = 1500
	maxSummaryRunes      = 100
	maxKeywords          = 8
)

const structureSystemPrompt = `Extract the following information as a JSON object.
Use null for anything you cannot find.

{
  "name": "place name",
  "name_jp": "name in Japanese script",
  "neighborhood": "Tokyo neighborhood",
  "summary": "one sentence summary, at most 100 characters",
  "keywords": ["5 to 8 relevant keywords"],
  "price_range": "¥ to ¥¥¥¥¥, or null"
}`

const structureUserPrompt = `Category: %s
Description: %s
Source text: %s`

// Structured is the typed summary extracted from a description. Pointer
// fields are nil when the model returned null.
type Structured struct {
	Name         *string  `json:"name"`
	NameJP       *string  `json:"name_jp"`
	Neighborhood *string  `json:"neighborhood"`
	Summary      *string  `json:"summary"`
	Keywords     []string `json:"keywords"`
	PriceRange   *string  `json:"price_range"`
}

// Validate trims the summary and keyword list to their bounds.
func (s *Structured) Validate() error {
	if s.Summary != nil {
		sum := truncate(strings.TrimSpace(*s.Summary), maxSummaryRunes)
		s.Summary = &sum
	}
	kw := s.Keywords[:0]
	for _, k := range s.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) > maxKeywords {
		kw = kw[:maxKeywords]
	}
	s.Keywords = kw
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// StructuredExtractor pulls typed fields out of a generated description.
type StructuredExtractor struct {
	llm   llm.Completer
	model string
}

// NewStructuredExtractor creates a StructuredExtractor.
func NewStructuredExtractor(c llm.Completer, model string) *StructuredExtractor {
	return &StructuredExtractor{llm: c, model: model}
}

// Extract fails only when the credentials are rejected. Any other error
// yields a fallback carrying the page title.
func (s *StructuredExtractor) Extract(ctx context.Context, page *model.Page, description string, cls Classification) (Structured, error) {
	title := page.Title
	fallback := Structured{Name: &title}
	log := zap.L().With(zap.String("url", page.URL))

	resp, err := s.llm.Complete(ctx, llm.Request{
		Model:       s.model,
		System:      structureSystemPrompt,
		User:        fmt.Sprintf(structureUserPrompt, cls.Category, description, truncate(page.Text, structureContextLen)),
		Temperature: structureTemperature,
		MaxTokens:   structureMaxTokens,
		JSON:        true,
	})
	if resilience.IsAuth(err) {
		return fallback, err
	}
	if err != nil {
		log.Warn("pipeline: structured extraction call failed, using fallback", zap.Error(err))
		return fallback, nil
	}

	out, err := llm.DecodeJSON(resp.Text, fallback)
	if err != nil {
		log.Warn("pipeline: structured extraction not decodable, using fallback", zap.Error(err))
		return fallback, nil
	}
	if str(out.Name) == "" {
		out.Name = &title
	}
	return out, nil
}
