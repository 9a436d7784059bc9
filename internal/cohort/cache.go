package cohort

import (
	"log/slog"
	"time"

	"github.com/campusiq/ml-analytics/internal/cache"
	"github.com/campusiq/ml-analytics/internal/encoding"
)

// SummaryCache holds marshaled cohort summaries so repeated reads skip
// both the database and re-encoding
type SummaryCache struct {
	cache *cache.ByteCache
}

// NewSummaryCache creates a summary cache with the given TTL
func NewSummaryCache(ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		cache: cache.NewByteCache(ttl),
	}
}

// NewSummaryCacheWithClock creates a summary cache with an injected clock,
// for tests
func NewSummaryCacheWithClock(ttl time.Duration, now func() time.Time) *SummaryCache {
	return &SummaryCache{
		cache: cache.NewByteCacheWithClock(ttl, now),
	}
}

func summaryKey(window string) string {
	return "cohort:summary:" + window
}

// GetSummary retrieves a cached summary for a window
func (sc *SummaryCache) GetSummary(window string) (*Summary, bool) {
	data, found := sc.cache.Get(summaryKey(window))
	if !found {
		return nil, false
	}

	var summary Summary
	if err := encoding.UnmarshalJSON(data, &summary); err != nil {
		slog.Error("Failed to unmarshal cached cohort summary", "window", window, "error", err)
		sc.cache.Delete(summaryKey(window))
		return nil, false
	}

	slog.Debug("Cohort summary cache hit", "window", window)
	return &summary, true
}

// SetSummary caches a summary for a window
func (sc *SummaryCache) SetSummary(window string, summary *Summary) {
	data, err := encoding.MarshalJSON(summary)
	if err != nil {
		slog.Error("Failed to marshal cohort summary for cache", "window", window, "error", err)
		return
	}

	sc.cache.Set(summaryKey(window), data)
	slog.Debug("Cohort summary cached", "window", window, "bytes", len(data))
}

// Invalidate drops the cached summary for one window, reporting whether
// an entry was present
func (sc *SummaryCache) Invalidate(window string) bool {
	return sc.cache.Delete(summaryKey(window))
}

// InvalidateAll drops every cached summary
func (sc *SummaryCache) InvalidateAll() {
	sc.cache.Clear()
	slog.Info("Cohort summary cache invalidated")
}

// Stats returns cache counters for the stats endpoints
func (sc *SummaryCache) Stats() map[string]interface{} {
	return sc.cache.Stats()
}

// Close stops the cache janitor
func (sc *SummaryCache) Close() {
	sc.cache.Close()
}
