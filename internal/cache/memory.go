package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// MemoryCache is the in-process fallback used when no REDIS_URL is
// configured. Entries expire lazily on read.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	counters map[string]*memoryCounter
}

type memoryEntry struct {
	ts        models.TagSet
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]memoryEntry),
		counters: make(map[string]*memoryCounter),
	}
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) GetTagSet(_ context.Context, contentHash string) (models.TagSet, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[contentHash]
	c.mu.RUnlock()
	if !ok {
		return models.TagSet{}, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, contentHash)
		c.mu.Unlock()
		return models.TagSet{}, false, nil
	}
	return entry.ts, true, nil
}

func (c *MemoryCache) SetTagSet(_ context.Context, contentHash string, ts models.TagSet, ttl time.Duration) error {
	entry := memoryEntry{ts: ts}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[contentHash] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.counters[key]
	if !ok || time.Now().After(ctr.expiresAt) {
		ctr = &memoryCounter{expiresAt: time.Now().Add(expiry)}
		c.counters[key] = ctr
	}
	ctr.count++
	return ctr.count, nil
}

func (c *MemoryCache) Close() error { return nil }

var _ Cache = (*MemoryCache)(nil)
