package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campusiq/ml-analytics/internal/resilience"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert represents a monitoring alert
type Alert struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Severity      AlertSeverity     `json:"severity"`
	Status        AlertStatus       `json:"status"`
	Service       string            `json:"service"`
	Labels        map[string]string `json:"labels,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
	Value         float64           `json:"value,omitempty"`
	Threshold     float64           `json:"threshold,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
	FiredAt       time.Time         `json:"fired_at"`
	LastSentAt    *time.Time        `json:"last_sent_at,omitempty"`
	SilencedUntil *time.Time        `json:"silenced_until,omitempty"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Query       string  // Metric to evaluate, see evaluateRule
	Threshold   float64 // Threshold value
	Operator    string  // "gt", "lt", "eq", "ne", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	Labels      map[string]string
	Annotations map[string]string
	For         time.Duration // Minimum active duration before resolution
}

// AlertNotifier defines the interface for sending alert notifications
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	WebhookURL string
	pool       *resilience.ConnectionPool
}

// NewSlackNotifier creates a Slack notifier backed by the shared HTTP pool
func NewSlackNotifier(webhookURL string, pool *resilience.ConnectionPool) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		pool:       pool,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return err
	}

	resp, err := s.pool.DoRequest(ctx, "POST", s.WebhookURL,
		map[string]string{"Content-Type": "application/json"},
		bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SendAlert sends an alert to Slack
func (s *SlackNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf("[%s] %s: %s (value=%.2f threshold=%.2f service=%s)",
		alert.Severity, alert.Name, alert.Description, alert.Value, alert.Threshold, alert.Service)
	if err := s.post(ctx, text); err != nil {
		return err
	}

	slog.Info("Slack alert sent", "alert", alert.Name, "severity", alert.Severity)
	return nil
}

// ResolveAlert notifies Slack that an alert has cleared
func (s *SlackNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf("[resolved] %s: %s (service=%s)", alert.Name, alert.Description, alert.Service)
	if err := s.post(ctx, text); err != nil {
		return err
	}

	slog.Info("Slack alert resolved", "alert", alert.Name)
	return nil
}

// AlertManager evaluates rules against live service metrics
type AlertManager struct {
	rules         []AlertRule
	alerts        map[string]*Alert
	notifiers     []AlertNotifier
	metrics       *Metrics
	logger        *Logger
	checkInterval time.Duration
	mutex         sync.RWMutex
}

// NewAlertManager creates a new alert manager
func NewAlertManager(metrics *Metrics, logger *Logger, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{},
		metrics:       metrics,
		logger:        logger,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start begins the alert evaluation loop
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.evaluateRules(ctx)
		}
	}
}

// evaluateRules evaluates all alert rules
func (am *AlertManager) evaluateRules(ctx context.Context) {
	am.mutex.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mutex.RUnlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule)
	}
}

// metricValue resolves a rule query against the live metrics
func (am *AlertManager) metricValue(query string) (float64, bool) {
	switch query {
	case "error_rate":
		return am.metrics.ErrorRatePercent(), true
	case "p95_latency":
		return float64(am.metrics.GetPercentileResponseTime(95).Milliseconds()), true
	case "gemini_failure_rate":
		return am.metrics.GeminiFailureRatePercent(), true
	case "heap_usage":
		return am.metrics.HeapUsagePercent(), true
	default:
		return 0, false
	}
}

// evaluateRule evaluates a single alert rule
func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	currentValue, ok := am.metricValue(rule.Query)
	if !ok {
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.mutex.Lock()
	defer am.mutex.Unlock()

	alert, exists := am.alerts[alertKey]

	// Lift an expired silence before evaluating
	if exists && alert.Status == StatusSuppressed {
		if alert.SilencedUntil != nil && time.Now().After(*alert.SilencedUntil) {
			alert.Status = StatusResolved
			alert.SilencedUntil = nil
		} else {
			return
		}
	}

	conditionMet := checkCondition(currentValue, rule.Operator, rule.Threshold)

	if conditionMet {
		if !exists {
			alert = &Alert{
				ID:          alertKey,
				Name:        rule.Name,
				Description: rule.Description,
				Severity:    rule.Severity,
				Status:      StatusActive,
				Service:     rule.Service,
				Labels:      rule.Labels,
				Annotations: rule.Annotations,
				Value:       currentValue,
				Threshold:   rule.Threshold,
				CreatedAt:   time.Now(),
				FiredAt:     time.Now(),
			}
			am.alerts[alertKey] = alert
			am.fireAlert(ctx, alert)
		} else if alert.Status != StatusActive {
			alert.Status = StatusActive
			alert.FiredAt = time.Now()
			alert.Value = currentValue
			am.fireAlert(ctx, alert)
		} else {
			alert.Value = currentValue
		}
	} else if exists && alert.Status == StatusActive {
		if time.Since(alert.FiredAt) > rule.For {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			am.resolveAlert(ctx, alert)
		}
	}
}

// checkCondition checks if a condition is met
func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "ne":
		return value != threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

// fireAlert fires an alert to all notifiers
func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	now := time.Now()
	alert.LastSentAt = &now

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// resolveAlert resolves an alert with all notifiers
func (am *AlertManager) resolveAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.ResolveAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_resolution_failed", fmt.Sprintf("Failed to resolve alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetAlerts returns all current alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	alerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		alerts[k] = v
	}
	return alerts
}

// GetActiveAlerts returns only active alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// SilenceAlert suppresses an alert until the given duration elapses
func (am *AlertManager) SilenceAlert(alertID string, duration time.Duration) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	alert, exists := am.alerts[alertID]
	if !exists {
		return false
	}

	until := time.Now().Add(duration)
	alert.Status = StatusSuppressed
	alert.SilencedUntil = &until

	am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced for %v", alert.Name, duration))
	return true
}

// Predefined alert rules
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate",
		Threshold:   10.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "ml-api",
		Description: "Request error rate is above 10%",
		For:         5 * time.Minute,
		Labels: map[string]string{
			"team": "ml-platform",
		},
		Annotations: map[string]string{
			"summary": "High error rate on prediction API",
		},
	},
	{
		Name:        "SlowPredictions",
		Query:       "p95_latency",
		Threshold:   1000.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "ml-api",
		Description: "p95 response time is above 1000ms",
		For:         2 * time.Minute,
		Labels: map[string]string{
			"team": "ml-platform",
		},
		Annotations: map[string]string{
			"summary": "Prediction latency degraded",
		},
	},
	{
		Name:        "GeminiDegraded",
		Query:       "gemini_failure_rate",
		Threshold:   50.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "gemini-api",
		Description: "More than half of Gemini enrichment calls are failing",
		For:         5 * time.Minute,
		Labels: map[string]string{
			"team": "ml-platform",
		},
		Annotations: map[string]string{
			"summary": "Gemini enrichment failing, predictions served without insights",
		},
	},
	{
		Name:        "HighHeapUsage",
		Query:       "heap_usage",
		Threshold:   90.0,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "runtime",
		Description: "Heap usage is above 90% of reserved heap",
		For:         1 * time.Minute,
		Labels: map[string]string{
			"team": "ml-platform",
		},
		Annotations: map[string]string{
			"summary": "High memory pressure",
		},
	},
}

// Global alert manager instance
var globalAlertManager *AlertManager

// InitGlobalAlertManager initializes the global alert manager
func InitGlobalAlertManager(metrics *Metrics, logger *Logger, checkInterval time.Duration) {
	globalAlertManager = NewAlertManager(metrics, logger, checkInterval)

	for _, rule := range DefaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
