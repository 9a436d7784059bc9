package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/ml-analytics/internal/analysis"
	"github.com/campusiq/ml-analytics/internal/types"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func sampleResponse(studentID string, score float64) types.PredictionResponse {
	return types.PredictionResponse{
		StudentID: studentID,
		Prediction: analysis.Prediction{
			RiskScore: score,
			RiskLevel: analysis.LevelMedium,
		},
	}
}

func TestCacheHitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)

	c.Set("stu-1", sampleResponse("stu-1", 0.42))
	clock.Advance(23 * time.Hour)

	got, ok := c.Get("stu-1")
	require.True(t, ok)
	assert.Equal(t, "stu-1", got.StudentID)
	assert.Equal(t, 0.42, got.RiskScore)
	assert.Equal(t, int64(1), c.Hits())
	assert.Equal(t, int64(0), c.Misses())
}

func TestCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)

	c.Set("stu-1", sampleResponse("stu-1", 0.42))
	clock.Advance(24 * time.Hour)

	_, ok := c.Get("stu-1")
	assert.False(t, ok, "entry at exactly the TTL boundary should be expired")
	assert.Equal(t, int64(1), c.Misses())
	assert.Equal(t, 0, c.Size(), "expired entry should be dropped on lookup")
}

func TestCacheMissUnknownStudent(t *testing.T) {
	c := NewPredictionCacheWithClock(24*time.Hour, 10, newFakeClock().Now)

	_, ok := c.Get("nobody")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Misses())
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 3, clock.Now)

	for i := 1; i <= 3; i++ {
		c.Set(fmt.Sprintf("stu-%d", i), sampleResponse(fmt.Sprintf("stu-%d", i), 0.1))
		clock.Advance(time.Minute)
	}
	c.Set("stu-4", sampleResponse("stu-4", 0.9))

	assert.Equal(t, 3, c.Size())
	_, ok := c.Get("stu-1")
	assert.False(t, ok, "oldest entry should have been evicted")
	for _, id := range []string{"stu-2", "stu-3", "stu-4"} {
		_, ok := c.Get(id)
		assert.True(t, ok, "entry %s should survive eviction", id)
	}
}

func TestCacheOverwriteDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 2, clock.Now)

	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	clock.Advance(time.Minute)
	c.Set("stu-2", sampleResponse("stu-2", 0.2))
	clock.Advance(time.Minute)
	c.Set("stu-2", sampleResponse("stu-2", 0.8))

	assert.Equal(t, 2, c.Size())
	got, ok := c.Get("stu-1")
	require.True(t, ok)
	assert.Equal(t, 0.1, got.RiskScore)
	got, ok = c.Get("stu-2")
	require.True(t, ok)
	assert.Equal(t, 0.8, got.RiskScore, "overwrite should replace the stored response")
}

func TestCacheDelete(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)

	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	c.Set("stu-2", sampleResponse("stu-2", 0.2))

	assert.True(t, c.Delete("stu-1"))
	assert.False(t, c.Delete("stu-1"), "repeat delete is a no-op")
	assert.False(t, c.Delete("ghost"))

	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("stu-2")
	assert.True(t, ok, "other entries are unaffected")
}

func TestCacheClearPreservesCounters(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)

	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	c.Get("stu-1")
	c.Get("ghost")

	c.Clear()

	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Hits(), "clear should not reset lifetime counters")
	assert.Equal(t, int64(1), c.Misses())
}

func TestCacheHitRate(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)

	assert.Equal(t, 0.0, c.HitRate(), "no lookups yet")

	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	c.Get("stu-1")
	c.Get("ghost")

	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
}

func TestCacheStatsShape(t *testing.T) {
	c := NewPredictionCacheWithClock(24*time.Hour, 10, newFakeClock().Now)
	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	c.Get("stu-1")

	stats := c.Stats()
	assert.Equal(t, 1, stats["size"])
	assert.Equal(t, 10, stats["max_size"])
	assert.Equal(t, 24.0, stats["ttl_hours"])
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(0), stats["misses"])
	assert.Equal(t, int64(1), stats["total_requests"])
}

func TestCacheDefaultsOnBadConfig(t *testing.T) {
	c := NewPredictionCacheWithClock(0, -5, newFakeClock().Now)

	assert.Equal(t, DefaultTTL, c.TTL())
	assert.Equal(t, DefaultMaxEntries, c.MaxSize())
}

type countingRecorder struct {
	hits, misses int
}

func (r *countingRecorder) IncrementCacheHit()  { r.hits++ }
func (r *countingRecorder) IncrementCacheMiss() { r.misses++ }

func TestCacheForwardsMetrics(t *testing.T) {
	clock := newFakeClock()
	c := NewPredictionCacheWithClock(24*time.Hour, 10, clock.Now)
	recorder := &countingRecorder{}
	c.SetMetrics(recorder)

	c.Set("stu-1", sampleResponse("stu-1", 0.1))
	c.Get("stu-1")
	c.Get("ghost")

	assert.Equal(t, 1, recorder.hits)
	assert.Equal(t, 1, recorder.misses)
}

func TestCacheCloseIsIdempotent(t *testing.T) {
	c := NewPredictionCache(time.Hour, 10)
	c.Close()
	c.Close()
}
