package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the lower-cased address.
func cacheKey(address string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(address))))
	return fmt.Sprintf("%x", h)
}

// memoCache keeps results by address, non-matches included.
type memoCache struct {
	mu      sync.Mutex
	entries map[string]Result
}

func newMemoCache() *memoCache {
	return &memoCache{entries: make(map[string]Result)}
}

func (c *memoCache) get(address string) (*Result, bool) {
	key := cacheKey(address)
	c.mu.Lock()
	r, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Matched))
	return &r, true
}

func (c *memoCache) put(address string, r *Result) {
	c.mu.Lock()
	c.entries[cacheKey(address)] = *r
	c.mu.Unlock()
}
