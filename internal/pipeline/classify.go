package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

// Category is the coarse kind of place assigned at classification.
type Category string

const (
	CategoryTemple     Category = "TEMPLE"
	CategoryShrine     Category = "SHRINE"
	CategoryMuseum     Category = "MUSEUM"
	CategoryPark       Category = "PARK"
	CategoryRestaurant Category = "RESTAURANT"
	CategoryCafe       Category = "CAFE"
	CategoryBar        Category = "BAR"
	CategoryHotel      Category = "HOTEL"
	CategoryMarket     Category = "MARKET"
	CategoryShop       Category = "SHOP"
	CategoryAttraction Category = "ATTRACTION"
	CategoryOnsen      Category = "ONSEN"
	CategoryOther      Category = "AUTRE"
)

var knownCategories = map[Category]bool{
	CategoryTemple: true, CategoryShrine: true, CategoryMuseum: true, CategoryPark: true,
	CategoryRestaurant: true, CategoryCafe: true, CategoryBar: true, CategoryHotel: true,
	CategoryMarket: true, CategoryShop: true, CategoryAttraction: true, CategoryOnsen: true,
	CategoryOther: true,
}

// NormalizeCategory upper-cases c and maps anything unknown to AUTRE.
func NormalizeCategory(c string) Category {
	cat := Category(strings.ToUpper(strings.TrimSpace(c)))
	if knownCategories[cat] {
		return cat
	}
	return CategoryOther
}

const (
	classifyTemperature = 0.2
	classifyMaxTokens   = 150
	classifyContextLen  = 1500
)

const classifySystemPrompt = `You are a Tokyo expert who knows the Tokyo Cheapo site well.

Decide whether the page describes ONE physical place a visitor can go to, not an article or a general guide. If it does, categorize it precisely.

Respond with a JSON object:
{
  "is_poi": true or false,
  "category": "TEMPLE|SHRINE|MUSEUM|PARK|RESTAURANT|CAFE|BAR|HOTEL|MARKET|SHOP|ATTRACTION|ONSEN|AUTRE",
  "subcategory": "more specific type if possible",
  "neighborhood": "Tokyo neighborhood if identifiable",
  "type_visitor": ["budget", "culture", "food", "family", ...]
}`

const classifyUserPrompt = `Title: %s
URL: %s
Description: %s
Tags: %s
Address: %s
Stations: %s
Content (excerpt): %s`

// Classification is the qualification verdict for one page.
type Classification struct {
	IsPOI        bool     `json:"is_poi"`
	Category     Category `json:"category"`
	Subcategory  string   `json:"subcategory"`
	Neighborhood string   `json:"neighborhood"`
	VisitorTypes []string `json:"type_visitor"`
}

// Validate normalizes the category and drops blank visitor types.
func (c *Classification) Validate() error {
	c.Category = NormalizeCategory(string(c.Category))
	c.Subcategory = strings.TrimSpace(c.Subcategory)
	c.Neighborhood = strings.TrimSpace(c.Neighborhood)
	types := c.VisitorTypes[:0]
	for _, v := range c.VisitorTypes {
		if v = strings.TrimSpace(v); v != "" {
			types = append(types, v)
		}
	}
	c.VisitorTypes = types
	return nil
}

// Classifier decides whether a page is a point of interest.
type Classifier struct {
	llm   llm.Completer
	model string
}

// NewClassifier creates a Classifier using model.
func NewClassifier(c llm.Completer, model string) *Classifier {
	return &Classifier{llm: c, model: model}
}

// Classify fails only when the credentials are rejected. Other transport
// errors yield "not qualified", and output that is not JSON falls back to
// looking for an affirmative token.
func (c *Classifier) Classify(ctx context.Context, page *model.Page) (Classification, error) {
	log := zap.L().With(zap.String("url", page.URL))

	resp, err := c.llm.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      classifySystemPrompt,
		User:        classifyUserContent(page),
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
		JSON:        true,
	})
	if resilience.IsAuth(err) {
		return Classification{}, err
	}
	if err != nil {
		log.Warn("pipeline: classification call failed", zap.Error(err))
		return Classification{}, nil
	}

	cls, err := llm.DecodeJSON(resp.Text, Classification{})
	if err != nil {
		upper := strings.ToUpper(resp.Text)
		if strings.Contains(upper, "OUI") || strings.Contains(upper, "TRUE") {
			log.Debug("pipeline: classification not JSON, affirmative token found")
			cls = Classification{IsPOI: true, Category: CategoryOther}
		} else {
			log.Debug("pipeline: classification not JSON", zap.Error(err))
			return Classification{}, nil
		}
	}
	if !cls.IsPOI {
		return Classification{}, nil
	}

	if cls.Neighborhood == "" {
		cls.Neighborhood = extract.Neighborhood(page.Address)
	}
	return cls, nil
}

func classifyUserContent(p *model.Page) string {
	return fmt.Sprintf(classifyUserPrompt,
		p.Title,
		p.URL,
		p.MetaDescription,
		strings.Join(p.Tags, ", "),
		p.Address,
		strings.Join(p.Stations, ", "),
		truncate(p.Text, classifyContextLen),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
