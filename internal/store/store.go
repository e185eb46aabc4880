package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// ErrConflict is returned when a write hits a uniqueness constraint: a second
// entity for the same source URL, or a second entity claiming the same
// external id.
var ErrConflict = eris.New("store: unique constraint conflict")

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// ErrNoProvider is returned for an external id written without its provider.
var ErrNoProvider = eris.New("store: external id without provider")

// EnrichmentFilter selects entities for the external directory passes.
type EnrichmentFilter struct {
	// Provider scopes Linked and Force to one directory.
	Provider string
	// Linked selects entities that already carry an id at Provider (fix pass).
	Linked bool
	// Force includes entities that were already enriched from Provider.
	Force bool
	// OnlyMissingCoords keeps entities without a usable position.
	OnlyMissingCoords bool
	Limit             int
}

// EnrichmentUpdate is the reconciled external data for one entity. Empty
// fields leave the stored value alone.
type EnrichmentUpdate struct {
	// Provider and ExternalID replace the entity's link at that provider.
	// An id may be linked to only one entity per provider.
	Provider   string
	ExternalID string
	Address    string
	Category   string
	Latitude   *float64
	Longitude  *float64
	// Attributes are merged into the stored attribute document.
	Attributes map[string]any
	Status     model.EnrichmentStatus
	EnrichedAt time.Time
}

// ReembedFilter selects entities whose stored vector is stale: embedded by
// another model than Model, never embedded, or enriched after embedding.
type ReembedFilter struct {
	Model string
	Limit int
}

// SimilarMatch is one stored entity above the similarity threshold.
type SimilarMatch struct {
	ID         string
	Name       string
	Similarity float64
}

// Store defines persistence for ingestion and enrichment.
type Store interface {
	// Work items
	LoadStatuses(ctx context.Context) (map[string]model.Status, error)
	SaveStatus(ctx context.Context, item model.WorkItem) error

	// Entities
	// InsertEntity writes the entity and then its tag associations in one
	// transaction, returning the entity id.
	InsertEntity(ctx context.Context, e *model.Entity, tagIDs []int64) (string, error)
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	ListForEnrichment(ctx context.Context, f EnrichmentFilter) ([]model.Entity, error)
	UpdateEnrichment(ctx context.Context, id string, u EnrichmentUpdate) error
	SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error
	MarkDuplicatesIgnored(ctx context.Context) (int, error)
	ListMissingCoordinates(ctx context.Context, limit int) ([]model.Entity, error)
	UpdateCoordinates(ctx context.Context, id string, lat, lng float64) error

	// Embeddings
	ListForReembedding(ctx context.Context, f ReembedFilter) ([]model.Entity, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, embeddingModel string, at time.Time) error

	// Images
	DeleteImages(ctx context.Context, pathPrefix string) (int, error)
	SaveImages(ctx context.Context, images []model.Image) error

	// Reference data
	GetOrCreateTag(ctx context.Context, name string, tagType model.TagType) (int64, error)
	GetOrCreateNeighborhood(ctx context.Context, name string) (int64, error)

	// Similarity
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarMatch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ImagePrefix is the storage prefix holding an entity's photos.
func ImagePrefix(entityID string) string {
	return "pois/" + entityID + "/"
}
