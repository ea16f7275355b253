package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

// Key identifies one cached outlook. Two requests with equal keys produce
// the same response given the same upstream snapshot, so concurrent writes
// are idempotent last-writer-wins and need no locking across processes.
type Key struct {
	Lat        float64
	Lon        float64
	TargetDate string // YYYY-MM-DD
	WindowDays int
	Units      models.Units
}

// String renders the key with coordinates rounded to 4 decimal places
// (~11m), which collapses jittery client coordinates onto one entry.
func (k Key) String() string {
	return fmt.Sprintf("outlook:%.4f:%.4f:%s:%d:%s", k.Lat, k.Lon, k.TargetDate, k.WindowDays, k.Units)
}

// Cache defines the outlook memoization store. Get returns ok=false on
// miss or expiry. The service recomputes when the cache is unavailable;
// backends must only report errors, never block the computation.
type Cache interface {
	Get(ctx context.Context, key Key) (models.OutlookResponse, bool, error)
	Set(ctx context.Context, key Key, value models.OutlookResponse, ttl time.Duration) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based
// expiration. Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

// cacheEntry stores one cached outlook with its expiration timestamp.
type cacheEntry struct {
	value     models.OutlookResponse
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached outlook for the key if present and not expired.
// Returns (value, true, nil) on hit, (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key Key) (models.OutlookResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	entry, ok := c.data[k]
	if !ok {
		return models.OutlookResponse{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, k)
		return models.OutlookResponse{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores an outlook with the specified TTL, overwriting any existing
// entry for the key (last writer wins).
func (c *InMemoryCache) Set(ctx context.Context, key Key, value models.OutlookResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key.String()] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
