package model

import "time"

// Stats are the running counters of one pass. Ingestion uses the status
// counters; the enrichment and geocode passes use the remaining ones.
type Stats struct {
	Total               int     `json:"total"`
	Processed           int     `json:"processed"`
	Success             int     `json:"success"`
	SkippedNotQualified int     `json:"skipped_not_qualified"`
	SkippedDuplicate    int     `json:"skipped_duplicate"`
	SkippedExisting     int     `json:"skipped_existing"`
	Failed              int     `json:"failed"`
	CostUSD             float64 `json:"cost_usd"`

	Matched           int `json:"matched,omitempty"`
	NoMatch           int `json:"no_match,omitempty"`
	Fixed             int `json:"fixed,omitempty"`
	Unchanged         int `json:"unchanged,omitempty"`
	Duplicates        int `json:"duplicates,omitempty"`
	Skipped           int `json:"skipped,omitempty"`
	ImagesInvalidated int `json:"images_invalidated,omitempty"`
	APICalls          int `json:"api_calls,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// Record increments the counter for an ingestion outcome.
func (s *Stats) Record(st Status) {
	s.Processed++
	switch st {
	case StatusSuccess:
		s.Success++
	case StatusSkippedNotQualified:
		s.SkippedNotQualified++
	case StatusSkippedDuplicate:
		s.SkippedDuplicate++
	case StatusSkippedExisting:
		s.SkippedExisting++
	case StatusFailed:
		s.Failed++
	}
}

// SkippedTotal sums every skip outcome.
func (s *Stats) SkippedTotal() int {
	return s.SkippedNotQualified + s.SkippedDuplicate + s.SkippedExisting + s.Skipped
}

// Checkpoint is the durable snapshot written during a pass.
type Checkpoint struct {
	Stats           Stats     `json:"stats"`
	Timestamp       time.Time `json:"timestamp"`
	LastProcessedID string    `json:"last_processed_id"`
}

// MatchCandidate is one place returned by the external directory search.
type MatchCandidate struct {
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Address    string         `json:"address,omitempty"`
	Latitude   float64        `json:"latitude,omitempty"`
	Longitude  float64        `json:"longitude,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Distance   int            `json:"distance,omitempty"`
	Verified   bool           `json:"verified"`
	Rating     *float64       `json:"rating,omitempty"`
	Price      *int           `json:"price,omitempty"`
	Phone      string         `json:"tel,omitempty"`
	Website    string         `json:"website,omitempty"`
	Hours      map[string]any `json:"hours,omitempty"`
}
