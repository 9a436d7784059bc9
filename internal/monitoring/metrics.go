package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	PredictionCount     int64
	BatchPredictions    int64
	EnrichedPredictions int64
	GeminiCalls         int64
	GeminiFailures      int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	// Response time samples for percentiles (last 1000)
	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	// Status code tracking
	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// Risk level distribution of computed predictions
	RiskLevelCounts map[string]int64
	RiskLevelMutex  sync.RWMutex

	// Circuit breaker metrics
	CircuitBreakerOpens  int64
	CircuitBreakerCloses int64

	// External API metrics
	ExternalAPIRequests   map[string]int64
	ExternalAPIErrorCount map[string]int64
	ExternalAPIMutex      sync.RWMutex

	// Memory and system metrics
	GCCount        int64
	GCPauseTotalNs int64
	HeapAlloc      int64
	HeapSys        int64

	// Rate limit metrics
	RateLimitIPBlocks       int64
	RateLimitUserBlocks     int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
	RateLimitEndpointBlocks map[string]int64
	RateLimitMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:               time.Now(),
		ResponseTimes:           make([]time.Duration, 0, 1000),
		RequestCountByStatus:    make(map[int]int64),
		RiskLevelCounts:         make(map[string]int64),
		ExternalAPIRequests:     make(map[string]int64),
		ExternalAPIErrorCount:   make(map[string]int64),
		RateLimitEndpointBlocks: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordPrediction records one computed prediction with its risk level and
// whether enrichment succeeded for it.
func (m *Metrics) RecordPrediction(level string, enriched bool) {
	atomic.AddInt64(&m.PredictionCount, 1)
	if enriched {
		atomic.AddInt64(&m.EnrichedPredictions, 1)
	}

	m.RiskLevelMutex.Lock()
	m.RiskLevelCounts[level]++
	m.RiskLevelMutex.Unlock()
}

// IncrementBatchPrediction increments the batch request count
func (m *Metrics) IncrementBatchPrediction() {
	atomic.AddInt64(&m.BatchPredictions, 1)
}

// RecordGeminiCall records one insight attempt against the Gemini API
func (m *Metrics) RecordGeminiCall(success bool) {
	atomic.AddInt64(&m.GeminiCalls, 1)
	if !success {
		atomic.AddInt64(&m.GeminiFailures, 1)
	}
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// IncrementCircuitBreakerOpen increments circuit breaker open count
func (m *Metrics) IncrementCircuitBreakerOpen() {
	atomic.AddInt64(&m.CircuitBreakerOpens, 1)
}

// IncrementCircuitBreakerClose increments circuit breaker close count
func (m *Metrics) IncrementCircuitBreakerClose() {
	atomic.AddInt64(&m.CircuitBreakerCloses, 1)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.ExternalAPIMutex.Lock()
	defer m.ExternalAPIMutex.Unlock()

	m.ExternalAPIRequests[apiName]++
	if !success {
		m.ExternalAPIErrorCount[apiName]++
	}
}

// RecordGCMetrics records Go garbage collector metrics
func (m *Metrics) RecordGCMetrics(gcCount int64, gcPauseTotalNs int64, heapAlloc, heapSys int64) {
	atomic.StoreInt64(&m.GCCount, gcCount)
	atomic.StoreInt64(&m.GCPauseTotalNs, gcPauseTotalNs)
	atomic.StoreInt64(&m.HeapAlloc, heapAlloc)
	atomic.StoreInt64(&m.HeapSys, heapSys)
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// ErrorRatePercent returns errors as a percentage of all requests.
func (m *Metrics) ErrorRatePercent() float64 {
	requests := atomic.LoadInt64(&m.RequestCount)
	if requests == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.ErrorCount)) / float64(requests) * 100
}

// GeminiFailureRatePercent returns failed insight attempts as a percentage
// of all Gemini calls.
func (m *Metrics) GeminiFailureRatePercent() float64 {
	calls := atomic.LoadInt64(&m.GeminiCalls)
	if calls == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.GeminiFailures)) / float64(calls) * 100
}

// HeapUsagePercent returns allocated heap as a percentage of heap obtained
// from the OS, 0 before the first memory sample.
func (m *Metrics) HeapUsagePercent() float64 {
	heapSys := atomic.LoadInt64(&m.HeapSys)
	if heapSys == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.HeapAlloc)) / float64(heapSys) * 100
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64)
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetRiskLevelDistribution returns prediction counts by risk level
func (m *Metrics) GetRiskLevelDistribution() map[string]int64 {
	m.RiskLevelMutex.RLock()
	defer m.RiskLevelMutex.RUnlock()

	distribution := make(map[string]int64)
	for level, count := range m.RiskLevelCounts {
		distribution[level] = count
	}
	return distribution
}

// GetExternalAPIStats returns external API statistics
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	m.ExternalAPIMutex.RLock()
	defer m.ExternalAPIMutex.RUnlock()

	stats := make(map[string]interface{})
	for api, requests := range m.ExternalAPIRequests {
		errors := m.ExternalAPIErrorCount[api]
		errorRate := float64(0)
		if requests > 0 {
			errorRate = float64(errors) / float64(requests) * 100
		}

		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     errors,
			"error_rate": errorRate,
		}
	}
	return stats
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	predictions := atomic.LoadInt64(&m.PredictionCount)
	batches := atomic.LoadInt64(&m.BatchPredictions)
	enriched := atomic.LoadInt64(&m.EnrichedPredictions)
	geminiCalls := atomic.LoadInt64(&m.GeminiCalls)
	geminiFailures := atomic.LoadInt64(&m.GeminiFailures)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	cacheHitRate := float64(0)
	totalCacheRequests := cacheHits + cacheMisses
	if totalCacheRequests > 0 {
		cacheHitRate = float64(cacheHits) / float64(totalCacheRequests) * 100
	}

	uptime := time.Since(m.StartTime)

	cbOpens := atomic.LoadInt64(&m.CircuitBreakerOpens)
	cbCloses := atomic.LoadInt64(&m.CircuitBreakerCloses)
	gcCount := atomic.LoadInt64(&m.GCCount)
	gcPauseTotalNs := atomic.LoadInt64(&m.GCPauseTotalNs)
	heapAlloc := atomic.LoadInt64(&m.HeapAlloc)
	heapSys := atomic.LoadInt64(&m.HeapSys)

	return map[string]interface{}{
		"uptime_seconds":         uptime.Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     m.ErrorRatePercent(),
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		// Prediction pipeline
		"predictions_total":           predictions,
		"batch_predictions_total":     batches,
		"enriched_predictions":        enriched,
		"risk_level_distribution":     m.GetRiskLevelDistribution(),
		"gemini_calls":                geminiCalls,
		"gemini_failures":             geminiFailures,
		"gemini_failure_rate_percent": m.GeminiFailureRatePercent(),

		// Latency percentiles
		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),

		// Circuit breaker metrics
		"circuit_breaker_opens":  cbOpens,
		"circuit_breaker_closes": cbCloses,

		// System metrics
		"go_gc_count":           gcCount,
		"go_gc_pause_total_ns":  gcPauseTotalNs,
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": m.HeapUsagePercent(),
	}
}

// Ensure Metrics satisfies the cache metrics recorder
var _ interface {
	IncrementCacheHit()
	IncrementCacheMiss()
} = (*Metrics)(nil)

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.PredictionCount, 0)
	atomic.StoreInt64(&m.BatchPredictions, 0)
	atomic.StoreInt64(&m.EnrichedPredictions, 0)
	atomic.StoreInt64(&m.GeminiCalls, 0)
	atomic.StoreInt64(&m.GeminiFailures, 0)
	atomic.StoreInt64(&m.AverageResponseTime, 0)
	atomic.StoreInt64(&m.CircuitBreakerOpens, 0)
	atomic.StoreInt64(&m.CircuitBreakerCloses, 0)
	atomic.StoreInt64(&m.GCCount, 0)
	atomic.StoreInt64(&m.GCPauseTotalNs, 0)
	atomic.StoreInt64(&m.HeapAlloc, 0)
	atomic.StoreInt64(&m.HeapSys, 0)
	atomic.StoreInt64(&m.RateLimitIPBlocks, 0)
	atomic.StoreInt64(&m.RateLimitUserBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = m.ResponseTimes[:0]
	m.ResponseTimesMutex.Unlock()

	m.StatusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.StatusMutex.Unlock()

	m.RiskLevelMutex.Lock()
	m.RiskLevelCounts = make(map[string]int64)
	m.RiskLevelMutex.Unlock()

	m.ExternalAPIMutex.Lock()
	m.ExternalAPIRequests = make(map[string]int64)
	m.ExternalAPIErrorCount = make(map[string]int64)
	m.ExternalAPIMutex.Unlock()

	m.RateLimitMutex.Lock()
	m.RateLimitEndpointBlocks = make(map[string]int64)
	m.RateLimitMutex.Unlock()

	m.StartTime = time.Now()
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitUserBlock increments user-based rate limit blocks
func (m *Metrics) IncrementRateLimitUserBlock() {
	atomic.AddInt64(&m.RateLimitUserBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// IncrementRateLimitEndpoint increments rate limit blocks for a specific endpoint
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitEndpointBlocks[endpoint]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	endpointBlocksCopy := make(map[string]int64, len(m.RateLimitEndpointBlocks))
	for k, v := range m.RateLimitEndpointBlocks {
		endpointBlocksCopy[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"user_blocks":     atomic.LoadInt64(&m.RateLimitUserBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
		"endpoint_blocks": endpointBlocksCopy,
	}
}
