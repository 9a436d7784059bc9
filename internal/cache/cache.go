package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/campusiq/ml-analytics/internal/types"
)

const (
	// DefaultTTL is how long a cached prediction stays servable.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxEntries bounds the cache before oldest-first eviction.
	DefaultMaxEntries = 1000

	janitorInterval = 5 * time.Minute
)

// MetricsRecorder receives cache hit/miss events for service metrics.
type MetricsRecorder interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

type cacheEntry struct {
	response types.PredictionResponse
	storedAt time.Time
}

// PredictionCache is a thread-safe TTL cache of prediction responses keyed
// by student id. Hit and miss counters are cumulative for the process
// lifetime; Clear empties the entries but leaves the counters alone.
type PredictionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	metrics  MetricsRecorder
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPredictionCache builds a wall-clock cache and starts the expiry
// janitor. Non-positive ttl or maxEntries fall back to the defaults.
func NewPredictionCache(ttl time.Duration, maxEntries int) *PredictionCache {
	c := newPredictionCache(ttl, maxEntries, time.Now)
	c.stop = make(chan struct{})
	go c.janitor()
	return c
}

// NewPredictionCacheWithClock builds a cache on an injected clock and no
// janitor, for deterministic expiry in tests.
func NewPredictionCacheWithClock(ttl time.Duration, maxEntries int, now func() time.Time) *PredictionCache {
	return newPredictionCache(ttl, maxEntries, now)
}

func newPredictionCache(ttl time.Duration, maxEntries int, now func() time.Time) *PredictionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &PredictionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     maxEntries,
		now:     now,
	}
}

// SetMetrics forwards hit/miss events to an external metrics sink.
func (c *PredictionCache) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Get returns the cached response for a student while it is fresh. Expired
// entries count as misses and are dropped.
func (c *PredictionCache) Get(studentID string) (types.PredictionResponse, bool) {
	c.mu.RLock()
	entry, exists := c.entries[studentID]
	c.mu.RUnlock()

	if exists && c.now().Sub(entry.storedAt) < c.ttl {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheHit()
		}
		return entry.response, true
	}

	if exists {
		c.mu.Lock()
		// Re-check under the write lock; a fresher entry may have landed.
		if current, ok := c.entries[studentID]; ok && current.storedAt.Equal(entry.storedAt) {
			delete(c.entries, studentID)
		}
		c.mu.Unlock()
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.IncrementCacheMiss()
	}
	return types.PredictionResponse{}, false
}

// Set stores a response for a student, evicting the oldest entry first when
// the cache is full and the student is not already present.
func (c *PredictionCache) Set(studentID string, response types.PredictionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[studentID]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[studentID] = cacheEntry{response: response, storedAt: c.now()}
}

func (c *PredictionCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Delete removes one student's entry. Returns false when the student was
// not cached; callers treat that as a no-op success.
func (c *PredictionCache) Delete(studentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.entries[studentID]
	delete(c.entries, studentID)
	return existed
}

// Clear drops every entry. The hit and miss counters are untouched.
func (c *PredictionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Size returns the number of stored entries, expired or not.
func (c *PredictionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// MaxSize returns the configured entry bound.
func (c *PredictionCache) MaxSize() int { return c.max }

// TTL returns the configured entry lifetime.
func (c *PredictionCache) TTL() time.Duration { return c.ttl }

// Hits returns the lifetime hit count.
func (c *PredictionCache) Hits() int64 { return c.hits.Load() }

// Misses returns the lifetime miss count.
func (c *PredictionCache) Misses() int64 { return c.misses.Load() }

// HitRate returns hits over total lookups, 0 before any lookup.
func (c *PredictionCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Stats returns cache statistics for the stats endpoints.
func (c *PredictionCache) Stats() map[string]interface{} {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	return map[string]interface{}{
		"size":           size,
		"max_size":       c.max,
		"ttl_hours":      c.ttl.Hours(),
		"hits":           hits,
		"misses":         misses,
		"hit_rate":       c.HitRate(),
		"total_requests": hits + misses,
	}
}

// Close stops the janitor goroutine. Safe on clock-injected caches that
// never started one, and safe to call more than once.
func (c *PredictionCache) Close() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			close(c.stop)
		}
	})
}

func (c *PredictionCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *PredictionCache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
