package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := rl.AllowIP(ctx, ip)
		if err != nil {
			// Log error but don't block request on rate limiter failure
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		// Inject standard rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded for IP",
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
				"reset_at":    result.ResetAt.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserRateLimitMiddleware creates middleware for per-user daily quotas on
// prediction endpoints. The user key comes from the authenticated user ID
// when present, otherwise from a hash of the client IP so anonymous callers
// still get a stable quota bucket. Both single and batch prediction routes
// end in "/predict", so the matched route pattern decides applicability.
func (rl *RateLimiter) UserRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasSuffix(c.FullPath(), "/predict") {
			c.Next()
			return
		}

		userKey := rl.resolveUserKey(c)
		ctx := c.Request.Context()

		result, err := rl.AllowUser(ctx, userKey)
		if err != nil {
			// Log error but don't block request on rate limiter failure
			slog.Error("User rate limit check failed", "user_key", shortID(userKey), "error", err)
			c.Next()
			return
		}

		// Inject user-specific rate limit headers
		c.Header("X-RateLimit-User-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-User-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-User-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitUserBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "daily request limit exceeded",
				"message":     fmt.Sprintf("You have used all %d prediction requests for today", result.Limit),
				"reset_at":    result.ResetAt.Unix(),
				"retry_after": int(result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware creates middleware for endpoint-specific rate limiting
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		key := fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, ip)

		result, err := rl.Allow(ctx, key, Rate{Limit: limit, Period: time.Minute})
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded for endpoint: %s", endpoint),
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// resolveUserKey prefers the authenticated user ID, falling back to a
// hashed client IP for anonymous requests.
func (rl *RateLimiter) resolveUserKey(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok && id != "" {
			return id
		}
	}
	sum := sha256.Sum256([]byte(c.ClientIP()))
	return "anon:" + hex.EncodeToString(sum[:8])
}

// shortID truncates identifiers for logging so full user IDs never land in logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
