package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campusiq/ml-analytics/internal/errors"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DegradedThreshold   float64       `json:"degraded_threshold"`    // Error rate threshold (0.0-1.0)
	CriticalThreshold   float64       `json:"critical_threshold"`    // Error rate threshold (0.0-1.0)
	EmergencyThreshold  float64       `json:"emergency_threshold"`   // Error rate threshold (0.0-1.0)
	RecoveryTimeWindow  time.Duration `json:"recovery_time_window"`  // Time window for error rate calculation
	HealthCheckTimeout  time.Duration `json:"health_check_timeout"`  // Timeout for health checks
	MaxDegradedDuration time.Duration `json:"max_degraded_duration"` // Max time in degraded state before emergency
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		HealthCheckInterval: 30 * time.Second,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
		RecoveryTimeWindow:  5 * time.Minute,
		HealthCheckTimeout:  5 * time.Second,
		MaxDegradedDuration: 10 * time.Minute,
	}
}

// ServiceHealth represents the health status of a dependency
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     error            `json:"-"`
	LastErrorTime time.Time        `json:"last_error_time"`
	DegradedSince *time.Time       `json:"degraded_since,omitempty"`
	StatusMessage string           `json:"status_message"`
}

// DegradationManager tracks dependency health and degrades optional
// features (Gemini enrichment, redis-backed limits) before they take
// the prediction path down with them.
type DegradationManager struct {
	config       DegradationConfig
	services     map[string]*ServiceHealth
	healthChecks map[string]HealthCheckFunc
	mutex        sync.RWMutex
}

// HealthCheckFunc represents a function that checks service health
type HealthCheckFunc func(ctx context.Context) error

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:       config,
		services:     make(map[string]*ServiceHealth),
		healthChecks: make(map[string]HealthCheckFunc),
	}
}

// RegisterService registers a service with an optional health check function
func (dm *DegradationManager) RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[serviceName] = &ServiceHealth{
		ServiceName:   serviceName,
		Level:         LevelNormal,
		StatusMessage: "Service is healthy",
	}

	if healthCheck != nil {
		dm.healthChecks[serviceName] = healthCheck
	}

	slog.Info("Registered service for degradation management", "service", serviceName)
}

// RecordRequest records a request and its success/failure
func (dm *DegradationManager) RecordRequest(serviceName string, success bool) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	service.TotalRequests++

	if !success {
		service.ErrorCount++
		service.LastErrorTime = time.Now()
	}

	if service.TotalRequests > 0 {
		service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)
	}

	dm.updateDegradationLevel(service)
}

// RecordError records an error for a service
func (dm *DegradationManager) RecordError(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	service.TotalRequests++
	service.ErrorCount++
	service.LastError = err
	service.LastErrorTime = time.Now()

	if service.TotalRequests > 0 {
		service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)
	}

	dm.updateDegradationLevel(service)
}

// updateDegradationLevel updates the degradation level based on current metrics
func (dm *DegradationManager) updateDegradationLevel(service *ServiceHealth) {
	oldLevel := service.Level
	now := time.Now()

	var newLevel DegradationLevel
	var statusMessage string

	switch {
	case service.ErrorRate >= dm.config.EmergencyThreshold:
		newLevel = LevelEmergency
		statusMessage = "Service is in emergency state - high error rate"
	case service.ErrorRate >= dm.config.CriticalThreshold:
		newLevel = LevelCritical
		statusMessage = "Service is in critical state - elevated error rate"
	case service.ErrorRate >= dm.config.DegradedThreshold:
		newLevel = LevelDegraded
		statusMessage = "Service is degraded - moderate error rate"
	default:
		newLevel = LevelNormal
		statusMessage = "Service is healthy"
	}

	if newLevel == LevelDegraded && service.DegradedSince != nil {
		if now.Sub(*service.DegradedSince) > dm.config.MaxDegradedDuration {
			newLevel = LevelEmergency
			statusMessage = "Service has been degraded too long - entering emergency state"
		}
	}

	if newLevel == LevelDegraded && oldLevel != LevelDegraded {
		service.DegradedSince = &now
	} else if newLevel != LevelDegraded {
		service.DegradedSince = nil
	}

	service.Level = newLevel
	service.StatusMessage = statusMessage

	if oldLevel != newLevel {
		slog.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// GetServiceHealth returns a copy of the health status of a service
func (dm *DegradationManager) GetServiceHealth(serviceName string) (*ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return nil, false
	}

	cp := *service
	return &cp, true
}

// GetAllServiceHealth returns health status for all services
func (dm *DegradationManager) GetAllServiceHealth() map[string]*ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]*ServiceHealth)
	for name, service := range dm.services {
		cp := *service
		result[name] = &cp
	}

	return result
}

// IsServiceAvailable checks if a service is available for use
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return false
	}

	// Unavailable only in emergency state
	return service.Level != LevelEmergency
}

// ShouldThrottleRequests checks if requests should be throttled due to high error rates
func (dm *DegradationManager) ShouldThrottleRequests(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return false
	}

	return service.Level >= LevelCritical
}

// GetThrottleFactor returns the fraction of normal load to admit (0.0-1.0)
func (dm *DegradationManager) GetThrottleFactor(serviceName string) float64 {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return 1.0
	}

	switch service.Level {
	case LevelNormal:
		return 1.0
	case LevelDegraded:
		return 0.7
	case LevelCritical:
		return 0.3
	case LevelEmergency:
		return 0.1
	default:
		return 1.0
	}
}

// StartHealthChecks starts periodic health checks for all registered services
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.performHealthChecks(ctx)
		}
	}
}

// performHealthChecks performs health checks for all services
func (dm *DegradationManager) performHealthChecks(ctx context.Context) {
	dm.mutex.RLock()
	checks := make(map[string]HealthCheckFunc, len(dm.healthChecks))
	for name, check := range dm.healthChecks {
		checks[name] = check
	}
	dm.mutex.RUnlock()

	for serviceName, healthCheck := range checks {
		go func(name string, check HealthCheckFunc) {
			checkCtx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
			defer cancel()

			err := check(checkCtx)
			if err != nil {
				dm.RecordError(name, errors.WrapError(err, "health check failed for service %s", name))
			} else {
				dm.RecordRequest(name, true)
			}
		}(serviceName, healthCheck)
	}
}

// ResetService resets a service's health status
func (dm *DegradationManager) ResetService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if service, exists := dm.services[serviceName]; exists {
		service.Level = LevelNormal
		service.ErrorRate = 0.0
		service.TotalRequests = 0
		service.ErrorCount = 0
		service.LastError = nil
		service.LastErrorTime = time.Time{}
		service.DegradedSince = nil
		service.StatusMessage = "Service is healthy"

		slog.Info("Service health reset", "service", serviceName)
	}
}

// GracefulShutdown logs the final status of all tracked services
func (dm *DegradationManager) GracefulShutdown() {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	slog.Info("Degradation manager shutting down", "services", len(dm.services))

	for name, service := range dm.services {
		slog.Info("Final service status",
			"service", name,
			"level", service.Level.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// Global degradation manager instance
var globalDegradationManager = NewDegradationManager(DefaultDegradationConfig())

// RegisterService registers a service globally
func RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	globalDegradationManager.RegisterService(serviceName, healthCheck)
}

// RecordRequest records a request globally
func RecordRequest(serviceName string, success bool) {
	globalDegradationManager.RecordRequest(serviceName, success)
}

// RecordError records an error globally
func RecordError(serviceName string, err error) {
	globalDegradationManager.RecordError(serviceName, err)
}

// IsServiceAvailable checks availability globally
func IsServiceAvailable(serviceName string) bool {
	return globalDegradationManager.IsServiceAvailable(serviceName)
}

// GetThrottleFactor returns the global throttle factor for a service
func GetThrottleFactor(serviceName string) float64 {
	return globalDegradationManager.GetThrottleFactor(serviceName)
}

// GetServiceHealth gets health status globally
func GetServiceHealth(serviceName string) (*ServiceHealth, bool) {
	return globalDegradationManager.GetServiceHealth(serviceName)
}

// GetAllServiceHealth gets all health statuses globally
func GetAllServiceHealth() map[string]*ServiceHealth {
	return globalDegradationManager.GetAllServiceHealth()
}

// StartHealthChecks starts global health checks
func StartHealthChecks(ctx context.Context) {
	go globalDegradationManager.StartHealthChecks(ctx)
}
