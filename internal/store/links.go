package store

import (
	"time"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// externalLink is one row of entity_external_ids.
type externalLink struct {
	EntityID   string
	Provider   string
	ExternalID string
	EnrichedAt *time.Time
}

func entityIDs(entities []model.Entity) []string {
	ids := make([]string, len(entities))
	for i := range entities {
		ids[i] = entities[i].ID
	}
	return ids
}

// applyLinks fills ExternalIDs and EnrichedAt from links.
func applyLinks(entities []model.Entity, links []externalLink) {
	byID := make(map[string]*model.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}
	for _, l := range links {
		e, ok := byID[l.EntityID]
		if !ok {
			continue
		}
		if e.ExternalIDs == nil {
			e.ExternalIDs = make(map[string]string)
		}
		e.ExternalIDs[l.Provider] = l.ExternalID
		if l.EnrichedAt != nil {
			if e.EnrichedAt == nil {
				e.EnrichedAt = make(map[string]time.Time)
			}
			e.EnrichedAt[l.Provider] = *l.EnrichedAt
		}
	}
}

func checkProvider(f EnrichmentFilter) error {
	if (f.Linked || !f.Force) && f.Provider == "" {
		return ErrNoProvider
	}
	return nil
}

// Correlated filters over entity_external_ids, shared by both backends.
const (
	linkedToProvider        = `EXISTS (SELECT 1 FROM entity_external_ids x WHERE x.entity_id = entities.id AND x.provider = ?)`
	notEnrichedFromProvider = `NOT EXISTS (SELECT 1 FROM entity_external_ids x WHERE x.entity_id = entities.id AND x.provider = ? AND x.enriched_at IS NOT NULL)`
	enrichedSinceEmbedding  = `EXISTS (SELECT 1 FROM entity_external_ids x WHERE x.entity_id = entities.id AND x.enriched_at > entities.embedded_at)`
)
