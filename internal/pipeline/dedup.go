package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

const (
	DefaultSimilarityThreshold = 0.92
	DefaultMatchCount          = 1
)

// SimilaritySearcher finds stored entities close to a vector.
type SimilaritySearcher interface {
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int) ([]store.SimilarMatch, error)
}

// DedupResult is the duplicate decision for one vector.
type DedupResult struct {
	Duplicate  bool
	MatchID    string
	MatchName  string
	Similarity float64
}

// Deduper decides whether a new description duplicates a stored entity. It
// never writes.
type Deduper struct {
	searcher  SimilaritySearcher
	threshold float64
	topK      int
}

// NewDeduper creates a Deduper. Zero values take the defaults.
func NewDeduper(s SimilaritySearcher, threshold float64, topK int) *Deduper {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if topK <= 0 {
		topK = DefaultMatchCount
	}
	return &Deduper{searcher: s, threshold: threshold, topK: topK}
}

// Check reports a duplicate when any stored entity is at or above the
// threshold.
func (d *Deduper) Check(ctx context.Context, embedding []float32) (DedupResult, error) {
	matches, err := d.searcher.FindSimilar(ctx, embedding, d.threshold, d.topK)
	if err != nil {
		return DedupResult{}, eris.Wrap(err, "pipeline: similarity lookup")
	}

	var best DedupResult
	for _, m := range matches {
		if m.Similarity >= d.threshold && m.Similarity > best.Similarity {
			best = DedupResult{Duplicate: true, MatchID: m.ID, MatchName: m.Name, Similarity: m.Similarity}
		}
	}
	return best, nil
}
