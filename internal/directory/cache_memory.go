package directory

import (
	"context"
	"sync"

	"kioskgw/pkg/platform/sentinel"
)

// MemoryCache is an in-process participant cache. It is the fallback when
// Redis is not configured; fine for a single instance, useless across
// replicas.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]*Record)}
}

// Get returns the cached record for the key, or sentinel.ErrNotFound.
func (c *MemoryCache) Get(_ context.Context, naturalKey string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[naturalKey]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// Set stores a record under the key.
func (c *MemoryCache) Set(_ context.Context, naturalKey string, record *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *record
	c.records[naturalKey] = &copied
	return nil
}
