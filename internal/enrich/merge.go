package enrich

import (
	"fmt"
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/foursquare"
)

// PhotoSource labels images fetched from the directory.
const PhotoSource = "foursquare"

// BuildUpdate reconciles a matched place into an update for e. Coordinates
// are only taken from the place when e has none; everything else the place
// knows overwrites what is stored.
func BuildUpdate(e *model.Entity, p *foursquare.Place, photos []foursquare.Photo, now time.Time) store.EnrichmentUpdate {
	c := toCandidate(*p)

	attrs := map[string]any{"verified": c.Verified}
	if c.Rating != nil {
		attrs["rating"] = *c.Rating
	}
	if c.Price != nil {
		attrs["price_tier"] = *c.Price
	}
	if len(c.Categories) > 0 {
		attrs["fsq_categories"] = c.Categories
	}
	if c.Phone != "" {
		attrs["phone"] = c.Phone
	}
	if c.Website != "" {
		attrs["website"] = c.Website
	}
	if p.Hours != nil {
		attrs["hours"] = p.Hours
		if oh := foursquare.ConvertHours(p.Hours); oh != nil {
			attrs["opening_hours"] = oh
		}
	}
	if urls := photoURLs(photos); len(urls) > 0 {
		attrs["photos"] = urls
		attrs["photos_processed_at"] = now.Format(time.RFC3339)
	}

	u := store.EnrichmentUpdate{
		Provider:   model.ProviderFoursquare,
		ExternalID: c.ExternalID,
		Address:    p.Location.FormattedAddress,
		Attributes: attrs,
		Status:     model.EnrichmentEnriched,
		EnrichedAt: now,
	}
	if len(c.Categories) > 0 {
		u.Category = c.Categories[0]
	}
	if !e.HasCoordinates() && (c.Latitude != 0 || c.Longitude != 0) {
		lat, lng := c.Latitude, c.Longitude
		u.Latitude, u.Longitude = &lat, &lng
	}
	return u
}

// Images turns photos into stored image references under the entity prefix.
func Images(entityID string, photos []foursquare.Photo) []model.Image {
	prefix := store.ImagePrefix(entityID)
	out := make([]model.Image, 0, len(photos))
	for i, ph := range photos {
		name := ph.ID
		if name == "" {
			name = fmt.Sprintf("%02d", i)
		}
		out = append(out, model.Image{
			EntityID: entityID,
			Path:     prefix + "fsq_" + name + ".jpg",
			URL:      ph.URL(),
			Source:   PhotoSource,
		})
	}
	return out
}

func photoURLs(photos []foursquare.Photo) []string {
	out := make([]string, 0, len(photos))
	for _, ph := range photos {
		out = append(out, ph.URL())
	}
	return out
}
