package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campusiq/ml-analytics/internal/monitoring"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin    int           // IP-based rate limit per minute
	UserLimitPerDay  int           // User-based rate limit per day
	BatchLimitPerMin int           // Batch prediction endpoint limit per minute per IP
	BurstMultiplier  int           // Burst capacity multiplier for short windows
	EnableFallback   bool          // Use in-memory limiting when Redis is unavailable
	CleanupInterval  time.Duration // How often to prune fallback limiters
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:    120,
		UserLimitPerDay:  2000,
		BatchLimitPerMin: 10,
		BurstMultiplier:  2,
		EnableFallback:   true,
		CleanupInterval:  1 * time.Hour,
	}
}

// Rate describes a single limit window
type Rate struct {
	Limit  int
	Period time.Duration
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	// In-memory fallback rate limiters
	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.RWMutex

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// maxFallbackEntries bounds the in-memory limiter map before a mass prune.
const maxFallbackEntries = 10000

// NewRateLimiter creates a new rate limiter with Redis and in-memory fallback
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stopCleanup:      make(chan struct{}),
	}

	// Initialize Redis rate limiter if enabled
	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	// Start cleanup goroutine for fallback limiters
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	go rl.cleanupLoop(interval)

	return rl
}

// AllowIP checks if an IP address is allowed to make a request (per-minute limit)
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:ip:%s:minute", ip)
	return rl.Allow(ctx, key, Rate{Limit: rl.config.IPLimitPerMin, Period: time.Minute})
}

// AllowUser checks if a user is allowed to make a request (per-day limit)
func (rl *RateLimiter) AllowUser(ctx context.Context, userID string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:user:%s:day", userID)
	return rl.Allow(ctx, key, Rate{Limit: rl.config.UserLimitPerDay, Period: 24 * time.Hour})
}

// Allow performs a rate limit check for an arbitrary key using Redis or fallback
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	// Try Redis first if enabled
	if rl.redisClient.IsEnabled() && rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, r)
		if err != nil {
			// Redis error - fall back to in-memory
			slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRedisError()
			}
			return rl.allowFallback(key, r)
		}
		return result, nil
	}

	// Use in-memory fallback
	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, r)
}

// allowRedis performs rate limiting using Redis sliding window
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate) (*Result, error) {
	rateLimit := redis_rate.Limit{
		Rate:   r.Limit,
		Burst:  r.Limit,
		Period: r.Period,
	}

	res, err := rl.redisLimiter.Allow(ctx, key, rateLimit)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback performs rate limiting using in-memory token bucket
func (rl *RateLimiter) allowFallback(key string, r Rate) (*Result, error) {
	rl.fallbackMutex.Lock()
	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		rps := rate.Limit(float64(r.Limit) / r.Period.Seconds())
		limiter = rate.NewLimiter(rps, rl.fallbackBurst(r))
		rl.fallbackLimiters[key] = limiter
	}
	rl.fallbackMutex.Unlock()

	allowed := limiter.Allow()

	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(r.Period),
	}
	if !allowed {
		result.RetryAfter = time.Until(result.ResetAt)
	}

	return result, nil
}

// fallbackBurst sizes the token bucket. Windows of a minute or longer
// enforce the nominal limit strictly; sub-minute windows get burst
// headroom so interactive clients are not penalized for request clumping.
func (rl *RateLimiter) fallbackBurst(r Rate) int {
	if r.Period >= time.Minute {
		return r.Limit
	}
	burst := r.Limit * rl.config.BurstMultiplier
	if burst < 5 {
		burst = 5
	}
	return burst
}

// cleanupLoop periodically prunes fallback limiters
func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops the fallback limiter map once it grows past the bound.
// Token buckets are cheap to rebuild so a mass prune only costs blocked
// clients a fresh burst allowance.
func (rl *RateLimiter) cleanup() {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	if len(rl.fallbackLimiters) > maxFallbackEntries {
		slog.Info("Cleaning up fallback rate limiters", "count", len(rl.fallbackLimiters))
		rl.fallbackLimiters = make(map[string]*rate.Limiter)
	}
}

// Close stops the cleanup goroutine. The Redis client is owned by the
// caller and closed separately.
func (rl *RateLimiter) Close() error {
	rl.closeOnce.Do(func() {
		close(rl.stopCleanup)
	})
	return nil
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.RLock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_enabled":  rl.config.EnableFallback,
		"fallback_limiters": fallbackCount,
		"config": map[string]interface{}{
			"ip_limit_per_min":    rl.config.IPLimitPerMin,
			"user_limit_per_day":  rl.config.UserLimitPerDay,
			"batch_limit_per_min": rl.config.BatchLimitPerMin,
			"burst_multiplier":    rl.config.BurstMultiplier,
		},
	}

	// Add Redis pool stats if available
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}

	return stats
}

// GetKeyCount returns the number of live rate limit keys
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.RLock()
		defer rl.fallbackMutex.RUnlock()
		return len(rl.fallbackLimiters), nil
	}

	client := rl.redisClient.GetClient()
	var cursor uint64
	var count int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, "ratelimit:*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan rate limit keys: %w", err)
		}
		count += len(keys)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}
