package model

import (
	"strings"
	"time"
)

// EnrichmentStatus tracks an entity through the external directory passes.
// EnrichmentDuplicate means another entity already holds the matched external
// id; it is unrelated to the ingestion-time StatusSkippedDuplicate.
type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentEnriched  EnrichmentStatus = "enriched"
	EnrichmentNoMatch   EnrichmentStatus = "no_match"
	EnrichmentDuplicate EnrichmentStatus = "duplicate"
	EnrichmentIgnored   EnrichmentStatus = "ignored"
	EnrichmentFailed    EnrichmentStatus = "failed"
)

// Entity is a persisted point of interest. ExternalIDs maps a directory
// provider to the entity's id there; EnrichedAt holds when each provider's
// data was last merged in.
type Entity struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	NameJP           string               `json:"name_jp,omitempty"`
	Description      string               `json:"description"`
	Summary          string               `json:"summary"`
	Category         string               `json:"category,omitempty"`
	Subcategory      string               `json:"subcategory,omitempty"`
	NeighborhoodID   *int64               `json:"neighborhood_id,omitempty"`
	Address          string               `json:"address,omitempty"`
	Latitude         *float64             `json:"latitude,omitempty"`
	Longitude        *float64             `json:"longitude,omitempty"`
	Embedding        []float32            `json:"-"`
	EmbeddingModel   string               `json:"embedding_model,omitempty"`
	EmbeddedAt       *time.Time           `json:"embedded_at,omitempty"`
	SourceURL        string               `json:"source_url"`
	SourceName       string               `json:"source_name"`
	Active           bool                 `json:"is_active"`
	Attributes       map[string]any       `json:"attributes,omitempty"`
	ExternalIDs      map[string]string    `json:"external_ids,omitempty"`
	EnrichmentStatus EnrichmentStatus     `json:"enrichment_status,omitempty"`
	EnrichedAt       map[string]time.Time `json:"enriched_at,omitempty"`
	ScrapedAt        time.Time            `json:"scraped_at"`
	CreatedAt        time.Time            `json:"created_at"`
}

// ProviderFoursquare keys Foursquare links in ExternalIDs and EnrichedAt.
const ProviderFoursquare = "foursquare"

// ExternalID returns the entity's id at provider, or "" when unlinked.
func (e *Entity) ExternalID(provider string) string {
	return e.ExternalIDs[provider]
}

// LastEnriched returns the most recent merge time over all providers.
func (e *Entity) LastEnriched() (time.Time, bool) {
	var last time.Time
	for _, t := range e.EnrichedAt {
		if t.After(last) {
			last = t
		}
	}
	return last, !last.IsZero()
}

// HasCoordinates reports whether the entity carries a usable position.
// A 0,0 pair is treated as missing.
func (e *Entity) HasCoordinates() bool {
	if e.Latitude == nil || e.Longitude == nil {
		return false
	}
	return *e.Latitude != 0 || *e.Longitude != 0
}

// TagType groups tags by what they describe.
type TagType string

const (
	TagCategory   TagType = "category"
	TagFeature    TagType = "feature"
	TagPriceRange TagType = "price_range"
	TagAmbiance   TagType = "ambiance"
)

// Tag is a normalized label, unique by (Name, Type).
type Tag struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Type TagType `json:"type"`
	Slug string  `json:"slug"`
}

// Slug lower-cases a name and replaces spaces with hyphens.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Neighborhood is a named area, unique by name.
type Neighborhood struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Image is a stored photo reference for an entity.
type Image struct {
	EntityID string `json:"entity_id"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Source   string `json:"source"`
}
