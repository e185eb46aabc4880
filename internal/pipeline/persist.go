package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/reference"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

// categoryTags maps a classification category to its stored tag name.
var categoryTags = map[Category]string{
	CategoryTemple:     "Temple",
	CategoryShrine:     "Temple",
	CategoryMuseum:     "Museum",
	CategoryPark:       "Park",
	CategoryRestaurant: "Restaurant",
	CategoryCafe:       "Café",
	CategoryBar:        "Bar",
	CategoryHotel:      "Accommodation",
	CategoryMarket:     "Market",
	CategoryShop:       "Shopping",
	CategoryAttraction: "Observatory",
	CategoryOnsen:      "Onsen",
	CategoryOther:      "Other",
}

var visitorTags = map[string]string{
	"budget":        "Budget",
	"culture":       "Culture",
	"food":          "Dining",
	"family":        "Family Friendly",
	"luxury":        "Luxury",
	"local":         "Local",
	"tourist":       "Tourist",
	"traditional":   "Traditional",
	"modern":        "Modern",
	"entertainment": "Entertainment",
	"nightlife":     "Nightlife",
	"shopping":      "Shopping",
}

// CategoryTag returns the tag name stored for c.
func CategoryTag(c Category) string {
	if name, ok := categoryTags[c]; ok {
		return name
	}
	return string(c)
}

// TagSpec is a tag to attach, before it has an id.
type TagSpec struct {
	Name string
	Type model.TagType
}

// PlanTags lists the tags for a new entity, without duplicates.
func PlanTags(cls Classification, price string) []TagSpec {
	var specs []TagSpec

	switch cls.Category {
	case CategoryMarket, CategoryShop:
		specs = append(specs,
			TagSpec{Name: CategoryTag(cls.Category), Type: model.TagFeature},
			TagSpec{Name: "Shopping", Type: model.TagFeature},
		)
	default:
		specs = append(specs, TagSpec{Name: CategoryTag(cls.Category), Type: model.TagCategory})
	}

	if cls.Neighborhood != "" {
		specs = append(specs, TagSpec{Name: cls.Neighborhood, Type: model.TagFeature})
	}

	for _, v := range cls.VisitorTypes {
		key := strings.ToLower(strings.TrimSpace(v))
		name, ok := visitorTags[key]
		if !ok {
			name = strings.TrimSpace(v)
		}
		specs = append(specs, TagSpec{Name: name, Type: visitorTagType(key)})
	}

	if strings.Contains(strings.ToLower(price), "free") {
		specs = append(specs, TagSpec{Name: "Free", Type: model.TagFeature})
	}

	return dedupTags(specs)
}

func visitorTagType(key string) model.TagType {
	switch key {
	case "budget", "luxury":
		return model.TagPriceRange
	case "local", "tourist", "traditional", "modern":
		return model.TagAmbiance
	default:
		return model.TagFeature
	}
}

func dedupTags(specs []TagSpec) []TagSpec {
	seen := make(map[TagSpec]bool, len(specs))
	out := specs[:0]
	for _, s := range specs {
		if s.Name == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// EntityWriter inserts a new entity with its tags.
type EntityWriter interface {
	InsertEntity(ctx context.Context, e *model.Entity, tagIDs []int64) (string, error)
}

// Candidate is everything gathered about one item before it is stored.
type Candidate struct {
	Page           *model.Page
	Classification Classification
	Description    string
	Structured     Structured
	Embedding      embed.Vector
}

// Persister builds and stores entities.
type Persister struct {
	writer     EntityWriter
	resolver   reference.Resolver
	sourceName string
	tier       string
	now        func() time.Time
}

// NewPersister creates a Persister.
func NewPersister(w EntityWriter, r reference.Resolver, sourceName, tier string) *Persister {
	return &Persister{writer: w, resolver: r, sourceName: sourceName, tier: tier, now: time.Now}
}

// Persist stores the candidate and returns the new entity id. A second entity
// for the same source URL returns an error matching store.ErrConflict.
func (p *Persister) Persist(ctx context.Context, c Candidate) (string, error) {
	e, err := p.BuildEntity(ctx, c)
	if err != nil {
		return "", err
	}

	specs := PlanTags(c.Classification, c.Page.Price)
	tagIDs := make([]int64, 0, len(specs))
	seen := make(map[int64]bool, len(specs))
	for _, s := range specs {
		id, err := p.resolver.Tag(ctx, s.Name, s.Type)
		if err != nil {
			return "", eris.Wrap(err, "pipeline: resolve tag")
		}
		if !seen[id] {
			seen[id] = true
			tagIDs = append(tagIDs, id)
		}
	}

	id, err := p.writer.InsertEntity(ctx, e, tagIDs)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: insert entity %s", c.Page.URL)
	}

	zap.L().Info("pipeline: entity created",
		zap.String("id", id),
		zap.String("name", e.Name),
		zap.String("category", string(c.Classification.Category)),
		zap.Int("tags", len(tagIDs)),
	)
	return id, nil
}

// BuildEntity assembles the entity row. It resolves the neighborhood but
// writes nothing else.
func (p *Persister) BuildEntity(ctx context.Context, c Candidate) (*model.Entity, error) {
	page, cls, st := c.Page, c.Classification, c.Structured

	name := str(st.Name)
	if name == "" {
		name = page.Title
	}
	summary := str(st.Summary)
	if summary == "" {
		summary = summarize(c.Description)
	}

	e := &model.Entity{
		Name:           name,
		NameJP:         str(st.NameJP),
		Description:    c.Description,
		Summary:        summary,
		Category:       CategoryTag(cls.Category),
		Subcategory:    cls.Subcategory,
		Address:        page.Address,
		Embedding:      c.Embedding.Values,
		EmbeddingModel: c.Embedding.Model,
		SourceURL:      page.URL,
		SourceName:     p.sourceName,
		Active:         false,
		ScrapedAt:      p.now().UTC(),
		Attributes:     p.attributes(c),
	}

	hood := cls.Neighborhood
	if hood == "" {
		hood = str(st.Neighborhood)
	}
	if hood != "" {
		id, err := p.resolver.Neighborhood(ctx, hood)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: resolve neighborhood")
		}
		e.NeighborhoodID = &id
	}
	return e, nil
}

func (p *Persister) attributes(c Candidate) map[string]any {
	page := c.Page
	attrs := map[string]any{
		"keywords":       c.Structured.Keywords,
		"visitor_types":  c.Classification.VisitorTypes,
		"original_tags":  page.Tags,
		"practical_info": page.Practical(-1),
		"images":         page.Practical(3).Images,
		"model_tier":     p.tier,
		"extracted_at":   p.now().UTC().Format(time.RFC3339),
	}
	if v := str(c.Structured.PriceRange); v != "" {
		attrs["price_range"] = v
	}
	if page.Price != "" {
		attrs["price_info"] = page.Price
	}
	if page.Hours != "" {
		attrs["opening_hours"] = page.Hours
	}
	if len(page.Stations) > 0 {
		attrs["nearest_stations"] = page.Stations
	}
	return attrs
}

// summarize cuts a description to a short summary.
func summarize(desc string) string {
	r := []rune(desc)
	if len(r) <= maxSummaryRunes {
		return desc
	}
	return string(r[:maxSummaryRunes]) + "..."
}

// IsConflict reports whether a persist error came from a uniqueness conflict.
func IsConflict(err error) bool { return store.IsConflict(err) }
