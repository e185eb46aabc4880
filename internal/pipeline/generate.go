package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

const (
	generateMaxTokens  = 400
	generateContextLen = 2000
	defaultStyle       = "engaging and informative"
)

var styleByCategory = map[Category]string{
	CategoryRestaurant: "appetizing and mouth-watering, evoking the flavors",
	CategoryTemple:     "spiritual and serene, capturing the sacred atmosphere",
	CategoryShrine:     "mystical and traditional, evoking its history",
	CategoryMuseum:     "cultural and enriching, highlighting what makes it worth a visit",
	CategoryPark:       "natural and soothing, describing its beauty",
	CategoryMarket:     "vibrant and lively, capturing its energy",
	CategoryOnsen:      "relaxing and authentic, evoking well-being",
	CategoryAttraction: "exciting and memorable, making the reader want to go",
}

// Style returns the writing style for a category.
func Style(c Category) string {
	if s, ok := styleByCategory[c]; ok {
		return s
	}
	return defaultStyle
}

const generateSystemPrompt = `You are a travel guide writer who knows Tokyo intimately and is known for vivid descriptions.

Write a %s description of this place in 150-200 words.
- The description must be entirely original; do not copy any sentence from the source text.
- Evoke sensations and emotions.
- Work practical details in naturally.
- Write for budget-conscious visitors.`

const generateUserPrompt = `Place: %s
Type: %s %s
Neighborhood: %s
For: %s

Practical info:
- Nearest stations: %s
- Price: %s
- Hours: %s

Source context:
%s`

// Generator writes the long-form description of a place.
type Generator struct {
	llm         llm.Completer
	model       string
	temperature float64
}

// NewGenerator creates a Generator.
func NewGenerator(c llm.Completer, model string, temperature float64) *Generator {
	return &Generator{llm: c, model: model, temperature: temperature}
}

// Generate returns the description. An error or empty answer is fatal for
// the item.
func (g *Generator) Generate(ctx context.Context, page *model.Page, cls Classification) (string, error) {
	resp, err := g.llm.Complete(ctx, llm.Request{
		Model:       g.model,
		System:      fmt.Sprintf(generateSystemPrompt, Style(cls.Category)),
		User:        generateUserContent(page, cls),
		Temperature: g.temperature,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: generate description")
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", eris.New("pipeline: empty description")
	}
	return text, nil
}

func generateUserContent(p *model.Page, cls Classification) string {
	neighborhood := cls.Neighborhood
	if neighborhood == "" {
		neighborhood = "Tokyo"
	}
	visitors := "everyone"
	if len(cls.VisitorTypes) > 0 {
		visitors = strings.Join(cls.VisitorTypes, ", ")
	}
	return fmt.Sprintf(generateUserPrompt,
		p.Title,
		cls.Category, cls.Subcategory,
		neighborhood,
		visitors,
		strings.Join(p.Stations, ", "),
		orDefault(p.Price, "Free/varies"),
		orDefault(p.Hours, "Varies"),
		truncate(p.Text, generateContextLen),
	)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
