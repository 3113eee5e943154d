package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ashmay29/NL2SQL/internal/types"
)

// MemoryCache is an in-process SchemaCache with per-entry TTL.
type MemoryCache struct {
	defaultTTL time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
	stats   Stats
}

type memoryEntry struct {
	schema    *types.Schema
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	return &MemoryCache{
		defaultTTL: defaultTTL,
		entries:    make(map[string]memoryEntry),
	}
}

// Get returns the cached schema for a fingerprint.
func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (*types.Schema, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(c.entries, fingerprint)
		}

		c.stats.Misses++

		return nil, false, nil
	}

	c.stats.Hits++

	return entry.schema, true, nil
}

// Put stores a schema under its fingerprint.
func (c *MemoryCache) Put(ctx context.Context, fingerprint string, schema *types.Schema, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = memoryEntry{
		schema:    schema,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Delete drops a fingerprint.
func (c *MemoryCache) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, fingerprint)

	return nil
}

// GetStats returns a snapshot of hit/miss counters.
func (c *MemoryCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}
