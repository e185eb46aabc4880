// Package reference resolves tags and neighborhoods to stable ids, creating
// them on first use.
package reference

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

// Resolver maps natural keys to reference ids.
type Resolver interface {
	Tag(ctx context.Context, name string, tagType model.TagType) (int64, error)
	Neighborhood(ctx context.Context, name string) (int64, error)
}

// Backend creates or fetches reference rows. Implementations must be
// idempotent on the natural key.
type Backend interface {
	GetOrCreateTag(ctx context.Context, name string, tagType model.TagType) (int64, error)
	GetOrCreateNeighborhood(ctx context.Context, name string) (int64, error)
}

type tagKey struct {
	name string
	typ  model.TagType
}

// Cached resolves through a Backend and remembers every id for the life of
// the process. Safe for concurrent use.
type Cached struct {
	backend Backend

	mu            sync.Mutex
	tags          map[tagKey]int64
	neighborhoods map[string]int64
}

// NewCached wraps backend with an in-process cache.
func NewCached(backend Backend) *Cached {
	return &Cached{
		backend:       backend,
		tags:          make(map[tagKey]int64),
		neighborhoods: make(map[string]int64),
	}
}

// Tag returns the id of the (name, type) tag.
func (c *Cached) Tag(ctx context.Context, name string, tagType model.TagType) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, eris.New("reference: empty tag name")
	}
	key := tagKey{name: name, typ: tagType}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.tags[key]; ok {
		return id, nil
	}
	id, err := c.backend.GetOrCreateTag(ctx, name, tagType)
	if err != nil {
		return 0, eris.Wrapf(err, "reference: tag %q", name)
	}
	c.tags[key] = id
	return id, nil
}

// Neighborhood returns the id of the named neighborhood.
func (c *Cached) Neighborhood(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, eris.New("reference: empty neighborhood name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.neighborhoods[name]; ok {
		return id, nil
	}
	id, err := c.backend.GetOrCreateNeighborhood(ctx, name)
	if err != nil {
		return 0, eris.Wrapf(err, "reference: neighborhood %q", name)
	}
	c.neighborhoods[name] = id
	return id, nil
}

// Memory is an in-process Backend for dry runs and tests.
type Memory struct {
	mu            sync.Mutex
	next          int64
	tags          map[tagKey]int64
	neighborhoods map[string]int64

	// Created counts rows created, not lookups.
	Created int
}

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		tags:          make(map[tagKey]int64),
		neighborhoods: make(map[string]int64),
	}
}

func (m *Memory) GetOrCreateTag(_ context.Context, name string, tagType model.TagType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tagKey{name: name, typ: tagType}
	if id, ok := m.tags[key]; ok {
		return id, nil
	}
	m.next++
	m.Created++
	m.tags[key] = m.next
	return m.next, nil
}

func (m *Memory) GetOrCreateNeighborhood(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.neighborhoods[name]; ok {
		return id, nil
	}
	m.next++
	m.Created++
	m.neighborhoods[name] = m.next
	return m.next, nil
}

// Tags returns the created tags, for inspection.
func (m *Memory) Tags() []model.Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Tag, 0, len(m.tags))
	for k, id := range m.tags {
		out = append(out, model.Tag{ID: id, Name: k.name, Type: k.typ, Slug: model.Slug(k.name)})
	}
	return out
}
