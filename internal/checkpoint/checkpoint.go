// Package checkpoint persists run progress as a small JSON document so an
// interrupted pass can resume.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// DefaultInterval is the number of items between automatic flushes.
const DefaultInterval = 25

// Manager writes checkpoints to a single file.
type Manager struct {
	path     string
	interval int
	now      func() time.Time

	mu      sync.Mutex
	pending int
	lastID  string
	stats   model.Stats
}

// NewManager creates a Manager for path that flushes every interval items.
func NewManager(path string, interval int) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{path: path, interval: interval, now: time.Now}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string { return m.path }

// Load reads the checkpoint file. It returns nil, nil when no file exists.
func (m *Manager) Load() (*model.Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read %s", m.path)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s", m.path)
	}
	return &cp, nil
}

// Tick records one processed item and flushes when the interval is reached.
// It reports whether a flush happened.
func (m *Manager) Tick(stats model.Stats, lastID string) (bool, error) {
	m.mu.Lock()
	m.stats = stats
	m.lastID = lastID
	m.pending++
	due := m.pending >= m.interval
	m.mu.Unlock()

	if !due {
		return false, nil
	}
	return true, m.Flush(stats, lastID)
}

// Flush writes the checkpoint immediately.
func (m *Manager) Flush(stats model.Stats, lastID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = stats
	m.lastID = lastID
	cp := model.Checkpoint{
		Stats:           stats,
		Timestamp:       m.now().UTC(),
		LastProcessedID: lastID,
	}
	if err := writeAtomic(m.path, cp); err != nil {
		return err
	}
	m.pending = 0

	zap.L().Debug("checkpoint: saved",
		zap.String("path", m.path),
		zap.String("last_processed_id", lastID),
		zap.Int("processed", stats.Processed),
	)
	return nil
}

// Remove deletes the checkpoint file; a missing file is not an error.
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "checkpoint: remove %s", m.path)
	}
	return nil
}

func writeAtomic(path string, cp model.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: encode")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "checkpoint: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "checkpoint: rename to %s", path)
	}
	return nil
}

// ResumeAfter drops every id up to and including lastID. When lastID is
// empty or not present, ids is returned unchanged.
func ResumeAfter(ids []string, lastID string) []string {
	if lastID == "" {
		return ids
	}
	for i, id := range ids {
		if id == lastID {
			return ids[i+1:]
		}
	}
	zap.L().Warn("checkpoint: resume cursor not found, starting from the beginning",
		zap.String("last_processed_id", lastID))
	return ids
}
