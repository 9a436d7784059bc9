package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// ByteCache is a TTL cache for serialized payloads. The cohort summary
// endpoints cache marshaled JSON here so repeated reads skip both the
// database and re-encoding.
type ByteCache struct {
	mu      sync.RWMutex
	entries map[string]byteEntry
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

type byteEntry struct {
	data     []byte
	storedAt time.Time
}

// NewByteCache creates a byte cache with the given TTL and starts its
// background janitor
func NewByteCache(ttl time.Duration) *ByteCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	c := &ByteCache{
		entries: make(map[string]byteEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go c.janitor()
	return c
}

// NewByteCacheWithClock creates a byte cache with an injected clock and
// no janitor, for tests
func NewByteCacheWithClock(ttl time.Duration, now func() time.Time) *ByteCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &ByteCache{
		entries: make(map[string]byteEntry),
		ttl:     ttl,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Get returns the cached payload for key if present and fresh
func (c *ByteCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		if ok {
			c.mu.Lock()
			if current, still := c.entries[key]; still && current.storedAt.Equal(entry.storedAt) {
				delete(c.entries, key)
			}
			c.mu.Unlock()
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.data, true
}

// Set stores a payload under key
func (c *ByteCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = byteEntry{data: data, storedAt: c.now()}
}

// Delete removes a key, reporting whether it was present
func (c *ByteCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear removes all entries, keeping hit and miss counters
func (c *ByteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]byteEntry)
}

// Size returns the number of cached entries
func (c *ByteCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats returns cache counters for the stats endpoints
func (c *ByteCache) Stats() map[string]interface{} {
	hits := c.hits.Load()
	misses := c.misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return map[string]interface{}{
		"size":        c.Size(),
		"ttl_minutes": c.ttl.Minutes(),
		"hits":        hits,
		"misses":      misses,
		"hit_rate":    hitRate,
	}
}

// Close stops the janitor, idempotently
func (c *ByteCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ByteCache) janitor() {
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

func (c *ByteCache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
