package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNetwork       ErrorCategory = "network"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryExternalAPI   ErrorCategory = "external_api"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not_found"
)

// AppError wraps an errbuilder error with request-facing context.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	codeStr := "UNKNOWN_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		codeStr = "VALIDATION_ERROR"
	case errbuilder.CodeUnavailable:
		codeStr = "NETWORK_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		codeStr = "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		codeStr = "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		codeStr = "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		codeStr = "CONFIGURATION_ERROR"
	case errbuilder.CodeNotFound:
		codeStr = "NOT_FOUND"
	}

	return fmt.Sprintf("[%s] %s", codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	detailStr := ""
	if len(details) > 0 {
		detailStr = fmt.Sprintf("%v", details[0])
	}

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if detailStr != "" {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", errors.New(detailStr))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError creates a not-found error for an absent resource
func NewNotFoundError(resource string, id string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("resource", errors.New(resource))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found: %s", resource, id)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewNetworkError creates a network error using errbuilder
func NewNetworkError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryNetwork, http.StatusBadGateway)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError creates a rate limit error using errbuilder
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewExternalAPIError creates an external API error using errbuilder
func NewExternalAPIError(apiName string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("api_name", errors.New(apiName))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("config_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Configuration error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			appErr := ToAppError(err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewNetworkError("Network connection failed", err)
	}

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return NewTimeoutError("Request timeout", err)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	ip := c.ClientIP()
	method := c.Request.Method
	path := c.Request.URL.Path
	requestID := c.GetHeader("X-Request-ID")

	errorCode := err.ErrBuilder.ErrCode()
	errorMsg := err.ErrBuilder.Msg
	errorDetails := err.ErrBuilder.Details

	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", errorCode,
		"http_status", err.HTTPStatus,
		"ip", ip,
		"method", method,
		"path", path,
		"request_id", requestID,
	)

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound:
		if len(errorDetails.Errors) > 0 {
			logEntry.Warn(errorMsg, "details", errorDetails.Errors)
		} else {
			logEntry.Warn(errorMsg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Info(errorMsg, "cause", cause)
		} else {
			logEntry.Info(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether the failure class is transient. The
// insight adapter consults this when deciding how to record an upstream
// failure; nothing in this service retries a request.
func IsRetryableError(err error) bool {
	appErr := ToAppError(err)

	switch appErr.Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
