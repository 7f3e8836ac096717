package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert is one fired rule instance, served by the /alerts endpoint
type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Severity    AlertSeverity     `json:"severity"`
	Status      AlertStatus       `json:"status"`
	Service     string            `json:"service"`
	Labels      map[string]string `json:"labels,omitempty"`
	Value       float64           `json:"value,omitempty"`
	Threshold   float64           `json:"threshold,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	FiredAt     time.Time         `json:"fired_at"`
}

// AlertRule compares a named gauge against a threshold
type AlertRule struct {
	Name        string
	Gauge       string // Name of a registered gauge
	Threshold   float64
	Operator    string // "gt", "lt", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	Labels      map[string]string
	For         time.Duration // How long past FiredAt before resolution is considered
}

// GaugeFunc supplies the current value of a monitored quantity
type GaugeFunc func() float64

// AlertNotifier delivers alert state changes to an external channel
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// SlackNotifier posts alert transitions to a Slack incoming webhook
type SlackNotifier struct {
	WebhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SendAlert posts a firing notification
func (s *SlackNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	return s.post(ctx, fmt.Sprintf(":rotating_light: [%s] %s — %s (value %.2f, threshold %.2f)",
		alert.Severity, alert.Name, alert.Description, alert.Value, alert.Threshold))
}

// ResolveAlert posts a resolution notification
func (s *SlackNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	return s.post(ctx, fmt.Sprintf(":white_check_mark: Resolved: %s", alert.Name))
}

// AlertManager evaluates rules against registered gauges on an interval
type AlertManager struct {
	mu            sync.Mutex
	rules         []AlertRule
	gauges        map[string]GaugeFunc
	alerts        map[string]*Alert
	notifiers     []AlertNotifier
	logger        *Logger
	checkInterval time.Duration
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *Logger, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		gauges:        make(map[string]GaugeFunc),
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{},
		logger:        logger,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// RegisterGauge binds a gauge name to its value source. Rules referencing
// an unregistered gauge are skipped.
func (am *AlertManager) RegisterGauge(name string, fn GaugeFunc) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.gauges[name] = fn
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start runs the evaluation loop until the context is cancelled
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

func (am *AlertManager) evaluateRules(ctx context.Context) {
	am.mu.Lock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.Unlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	am.mu.Lock()
	gauge, ok := am.gauges[rule.Gauge]
	am.mu.Unlock()
	if !ok {
		return
	}

	currentValue := gauge()
	conditionMet := checkCondition(currentValue, rule.Operator, rule.Threshold)

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.mu.Lock()
	alert, exists := am.alerts[alertKey]

	switch {
	case conditionMet && !exists:
		alert = &Alert{
			ID:          alertKey,
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Status:      StatusActive,
			Service:     rule.Service,
			Labels:      rule.Labels,
			Value:       currentValue,
			Threshold:   rule.Threshold,
			CreatedAt:   time.Now(),
			FiredAt:     time.Now(),
		}
		am.alerts[alertKey] = alert
		am.mu.Unlock()
		am.fireAlert(ctx, alert)
		return

	case conditionMet && alert.Status == StatusResolved:
		alert.Status = StatusActive
		alert.FiredAt = time.Now()
		alert.Value = currentValue
		am.mu.Unlock()
		am.fireAlert(ctx, alert)
		return

	case !conditionMet && exists && alert.Status == StatusActive:
		if time.Since(alert.FiredAt) > rule.For {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			am.mu.Unlock()
			am.resolveAlert(ctx, alert)
			return
		}
	}
	am.mu.Unlock()
}

func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

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

// GetAlerts returns all known alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	alerts := make(map[string]*Alert, len(am.alerts))
	for k, v := range am.alerts {
		alerts[k] = v
	}
	return alerts
}

// GetActiveAlerts returns only currently firing alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// SilenceAlert suppresses an alert so notifiers stop hearing about it
func (am *AlertManager) SilenceAlert(alertID string, duration time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		alert.Status = StatusSuppressed
		am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced for %v", alert.Name, duration))
	}
}

// defaultAlertRules cover the failure modes this service actually has:
// degraded upstreams and heap growth from the analysis path.
var defaultAlertRules = []AlertRule{
	{
		Name:        "HighHeapUsage",
		Gauge:       "heap_alloc_mb",
		Threshold:   512,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "system",
		Description: "Heap allocation is above 512MB",
		For:         1 * time.Minute,
		Labels:      map[string]string{"component": "runtime"},
	},
	{
		Name:        "GoroutineLeak",
		Gauge:       "num_goroutine",
		Threshold:   5000,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "system",
		Description: "Goroutine count is above 5000",
		For:         3 * time.Minute,
		Labels:      map[string]string{"component": "runtime"},
	},
}

var globalAlertManager *AlertManager

// InitGlobalAlertManager creates the global manager with the default rules
// and their runtime-backed gauges
func InitGlobalAlertManager(logger *Logger, checkInterval time.Duration) {
	globalAlertManager = NewAlertManager(logger, checkInterval)

	globalAlertManager.RegisterGauge("heap_alloc_mb", func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.HeapAlloc) / (1024 * 1024)
	})
	globalAlertManager.RegisterGauge("num_goroutine", func() float64 {
		return float64(runtime.NumGoroutine())
	})

	for _, rule := range defaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager's evaluation loop
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
