package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware creates Gin middleware for request monitoring
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)

		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
			}
		}

		if duration > 5*time.Second {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// maxFeatureBodyBytes flags unusually large feature payloads. Even a full
// batch of records fits comfortably below this.
const maxFeatureBodyBytes = 64 * 1024

// SecurityMonitoringMiddleware monitors for suspicious activity
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		suspicious := false
		details := make(map[string]interface{})

		if containsSQLInjectionPatterns(c.Request.URL.RawQuery) {
			suspicious = true
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}

		if method == "POST" && strings.HasPrefix(path, "/api/ml/") {
			bodySize := c.Request.ContentLength
			if bodySize > maxFeatureBodyBytes {
				suspicious = true
				details["type"] = "large_request_body"
				details["size_bytes"] = bodySize
			}
		}

		if containsSuspiciousUserAgent(userAgent) {
			suspicious = true
			details["type"] = "suspicious_user_agent"
			details["user_agent"] = userAgent
		}

		if suspicious {
			logger.SecurityLogger("suspicious_activity_detected", ip, userAgent, details)
		}

		c.Next()
	}
}

// containsSQLInjectionPatterns checks for common SQL injection patterns
func containsSQLInjectionPatterns(query string) bool {
	patterns := []string{
		"union select",
		"union all",
		"select * from",
		"drop table",
		"delete from",
		"';--",
		"/*",
		"*/",
		" xp_",
		" sp_",
	}

	lowered := strings.ToLower(query)
	for _, pattern := range patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}

// containsSuspiciousUserAgent checks for suspicious user agents
func containsSuspiciousUserAgent(userAgent string) bool {
	suspiciousAgents := []string{
		"sqlmap",
		"nmap",
		"masscan",
		"zmap",
		"dirbuster",
		"gobuster",
		"nikto",
		"acunetix",
		"openvas",
		"rapid7",
		"qualys",
		"nessus",
	}

	lowered := strings.ToLower(userAgent)
	for _, agent := range suspiciousAgents {
		if strings.Contains(lowered, agent) {
			return true
		}
	}

	return false
}
