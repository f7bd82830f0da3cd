package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// Cache defines the interface for uploaded dataset storage.
// Get returns the upload if present and not expired, Set stores it with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Upload, bool, error)
	Set(ctx context.Context, key string, value models.Upload, ttl time.Duration) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access and on every Set.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Upload
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the upload stored under key if present and not expired.
// Returns (upload, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Upload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Upload{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Upload{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores an upload with the specified TTL duration. Expired entries are
// evicted on every Set; upload ids are never read again once abandoned.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Upload, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
		}
	}
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
