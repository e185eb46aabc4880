// Package tracker records the processing outcome of every work item so that
// re-runs skip what is already done.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// Backend persists work item statuses.
type Backend interface {
	LoadStatuses(ctx context.Context) (map[string]model.Status, error)
	SaveStatus(ctx context.Context, item model.WorkItem) error
}

// Tracker is the in-run view of processed items, backed by a durable Backend.
type Tracker struct {
	backend Backend
	force   bool

	mu       sync.RWMutex
	statuses map[string]model.Status
	loaded   bool
}

// New creates a Tracker. With force set, terminal items are processed again.
func New(backend Backend, force bool) *Tracker {
	return &Tracker{
		backend:  backend,
		force:    force,
		statuses: make(map[string]model.Status),
	}
}

// Load reads every known status from the backend.
func (t *Tracker) Load(ctx context.Context) error {
	statuses, err := t.backend.LoadStatuses(ctx)
	if err != nil {
		return eris.Wrap(err, "tracker: load")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = statuses
	if t.statuses == nil {
		t.statuses = make(map[string]model.Status)
	}
	t.loaded = true

	zap.L().Debug("tracker: statuses loaded", zap.Int("count", len(statuses)))
	return nil
}

// ShouldProcess reports whether id needs work, along with its known status.
// Items without a record or still pending are always processed.
func (t *Tracker) ShouldProcess(id string) (bool, model.Status) {
	t.mu.RLock()
	st, ok := t.statuses[id]
	t.mu.RUnlock()

	if !ok {
		return true, model.StatusPending
	}
	if st.Terminal() && !t.force {
		return false, st
	}
	return true, st
}

// Filter returns the ids that still need work, preserving order, and how
// many were dropped as already processed.
func (t *Tracker) Filter(ids []string) ([]string, int) {
	out := make([]string, 0, len(ids))
	filtered := 0
	for _, id := range ids {
		if ok, _ := t.ShouldProcess(id); ok {
			out = append(out, id)
			continue
		}
		filtered++
	}
	return out, filtered
}

// Record upserts the outcome for id. A later call for the same id replaces
// the earlier record.
func (t *Tracker) Record(ctx context.Context, id string, status model.Status, stage, detail string) error {
	if !status.Valid() {
		return eris.Errorf("tracker: invalid status %q for %s", status, id)
	}
	item := model.WorkItem{
		ID:          id,
		Status:      status,
		Stage:       stage,
		ErrorDetail: detail,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := t.backend.SaveStatus(ctx, item); err != nil {
		return eris.Wrapf(err, "tracker: record %s", id)
	}

	t.mu.Lock()
	t.statuses[id] = status
	t.mu.Unlock()
	return nil
}

// Status returns the known status of id.
func (t *Tracker) Status(id string) (model.Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[id]
	return st, ok
}

// Len is the number of tracked items.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}
