package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/campusiq/ml-analytics/internal/errors"
	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxStudentIDLength int           `json:"max_student_id_length"`
	MaxInputLength     int           `json:"max_input_length"`
	MaxBodyBytes       int64         `json:"max_body_bytes"`
	EnableCORS         bool          `json:"enable_cors"`
	AllowedOrigins     []string      `json:"allowed_origins"`
	TrustedProxies     []string      `json:"trusted_proxies"`
	RequestTimeout     time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxStudentIDLength: 64,
		MaxInputLength:     200,
		MaxBodyBytes:       1 << 20, // 1 MiB
		EnableCORS:         true,
		AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies:     []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:     30 * time.Second,
	}
}

// SecurityMiddleware provides request validation and hardening middleware
type SecurityMiddleware struct {
	config SecurityConfig
}

// studentIDPattern: starts and ends alphanumeric, dots/dashes/underscores
// allowed as interior separators.
var studentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// ValidateInput performs generic input validation on free-text fields
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	// Check length limits
	if len(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}

	// Check for null bytes (potential injection attempt)
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}

	// Validate UTF-8 encoding
	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}

	// Check for suspicious patterns (basic XSS/SQL injection detection)
	suspiciousPatterns := []string{
		`<script`, `</script>`, `javascript:`,
		`union select`, `drop table`, `alter table`,
		`--`, `/*`, `*/`, `xp_`, `sp_`,
	}

	inputLower := strings.ToLower(input)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(inputLower, pattern) {
			return fmt.Errorf("input contains suspicious patterns")
		}
	}

	return nil
}

// ValidateStudentID validates a student identifier as used in route params
// and request bodies. IDs are opaque platform identifiers: alphanumeric with
// dot/dash/underscore separators, no consecutive separators.
func (sm *SecurityMiddleware) ValidateStudentID(id string) error {
	if id == "" {
		return fmt.Errorf("student id is required")
	}

	if len(id) > sm.config.MaxStudentIDLength {
		return fmt.Errorf("student id exceeds maximum length of %d characters", sm.config.MaxStudentIDLength)
	}

	if err := sm.ValidateInput(id); err != nil {
		return err
	}

	// No consecutive separators
	if strings.Contains(id, "..") || strings.Contains(id, "__") {
		return fmt.Errorf("invalid student id format")
	}

	if !studentIDPattern.MatchString(id) {
		return fmt.Errorf("invalid student id format")
	}

	return nil
}

// SanitizeInput sanitizes user input by removing potentially dangerous content
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove script tags and their content
	scriptPattern := regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	input = scriptPattern.ReplaceAllString(input, "")

	// Remove other HTML tags (but keep content between them)
	htmlTagPattern := regexp.MustCompile(`<[^>]+>`)
	input = htmlTagPattern.ReplaceAllString(input, "")

	// Collapse excessive whitespace
	input = regexp.MustCompile(`\s+`).ReplaceAllString(input, " ")

	// Decode HTML entities (basic)
	htmlEntities := map[string]string{
		"&lt;":   "<",
		"&gt;":   ">",
		"&amp;":  "&",
		"&quot;": "\"",
		"&#x27;": "'",
		"&#39;":  "'",
	}

	for entity, char := range htmlEntities {
		input = strings.ReplaceAll(input, entity, char)
	}

	return input
}

// StudentIDParamMiddleware validates the named route parameter before the
// handler runs, so handlers can assume a well-formed id.
func (sm *SecurityMiddleware) StudentIDParamMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param(param)
		if err := sm.ValidateStudentID(id); err != nil {
			_ = c.Error(apperrors.NewValidationError("invalid student id", err.Error()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBodySize caps request body reads; oversized bodies fail during binding
// with a clear error instead of exhausting memory.
func (sm *SecurityMiddleware) MaxBodySize(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	// Allow JSON and form-encoded content
	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	if contentType != "" {
		found := false
		for _, allowed := range allowedTypes {
			if strings.Contains(strings.ToLower(contentType), allowed) {
				found = true
				break
			}
		}

		if !found {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)

	// Advertise the timeout so clients can size their own deadlines
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// RequestLogging provides secure request logging. Query strings are logged
// as-is; bodies never are.
func (sm *SecurityMiddleware) RequestLogging(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery

	c.Next()

	latency := time.Since(start)
	statusCode := c.Writer.Status()
	clientIP := c.ClientIP()
	method := c.Request.Method

	if raw != "" {
		path = path + "?" + raw
	}

	if statusCode >= 400 {
		slog.Warn("request completed with error status",
			"method", method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", clientIP,
		)
	} else if !strings.Contains(path, "/health") {
		slog.Info("request completed",
			"method", method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", clientIP,
		)
	}
}
