package model

import "time"

// Status is the outcome recorded for one source identifier.
type Status string

const (
	StatusPending             Status = "pending"
	StatusSuccess             Status = "success"
	StatusSkippedNotQualified Status = "skipped_not_qualified"
	StatusSkippedDuplicate    Status = "skipped_duplicate"
	StatusSkippedExisting     Status = "skipped_existing"
	StatusFailed              Status = "failed"
)

// Terminal reports whether the status ends processing for the identifier.
// Every status except pending is terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusSkippedNotQualified, StatusSkippedDuplicate, StatusSkippedExisting, StatusFailed:
		return true
	}
	return false
}

// Skipped reports whether the status is one of the skip outcomes.
func (s Status) Skipped() bool {
	switch s {
	case StatusSkippedNotQualified, StatusSkippedDuplicate, StatusSkippedExisting:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// WorkItem is the persisted per-identifier record.
type WorkItem struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
