package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/fairscan/internal/errors"
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

// MarshalJSON serializes levels by name so health payloads stay readable
func (l DegradationLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DegradedThreshold   float64       `json:"degraded_threshold"`    // Error rate threshold (0.0-1.0)
	CriticalThreshold   float64       `json:"critical_threshold"`    // Error rate threshold (0.0-1.0)
	EmergencyThreshold  float64       `json:"emergency_threshold"`   // Error rate threshold (0.0-1.0)
	RecoveryTimeWindow  time.Duration `json:"recovery_time_window"`  // Counters reset after this window
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

// ServiceHealth is the tracked state of one dependency (the audit index,
// redis, or the news upstream)
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

	windowStart time.Time
}

// DegradationManager tracks dependency health from request outcomes and
// periodic health checks, and grades each dependency into a level the
// health endpoint and throttling logic act on
type DegradationManager struct {
	config       DegradationConfig
	services     map[string]*ServiceHealth
	healthChecks map[string]HealthCheckFunc
	mutex        sync.RWMutex
}

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(ctx context.Context) error

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:       config,
		services:     make(map[string]*ServiceHealth),
		healthChecks: make(map[string]HealthCheckFunc),
	}
}

// RegisterService starts tracking a dependency. A nil healthCheck means
// its health comes only from recorded request outcomes.
func (dm *DegradationManager) RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[serviceName] = &ServiceHealth{
		ServiceName:   serviceName,
		Level:         LevelNormal,
		StatusMessage: "Service is healthy",
		windowStart:   time.Now(),
	}

	if healthCheck != nil {
		dm.healthChecks[serviceName] = healthCheck
	}

	slog.Info("Registered service for degradation management", "service", serviceName)
}

// RecordRequest records one request outcome against a dependency
func (dm *DegradationManager) RecordRequest(serviceName string, success bool) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	dm.rotateWindow(service)
	service.TotalRequests++
	if !success {
		service.ErrorCount++
		service.LastErrorTime = time.Now()
		service.LastError = errors.NewInternalError("Service request failed", nil)
	}

	dm.refreshLevel(service)
}

// RecordError records a failed call with its error
func (dm *DegradationManager) RecordError(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return
	}

	dm.rotateWindow(service)
	service.TotalRequests++
	service.ErrorCount++
	service.LastError = err
	service.LastErrorTime = time.Now()

	dm.refreshLevel(service)
}

// rotateWindow resets the counters once the rate window has passed, so an
// old burst of errors does not pin a recovered dependency at emergency.
// Caller must hold the lock.
func (dm *DegradationManager) rotateWindow(service *ServiceHealth) {
	if dm.config.RecoveryTimeWindow <= 0 {
		return
	}
	if time.Since(service.windowStart) > dm.config.RecoveryTimeWindow {
		service.windowStart = time.Now()
		service.TotalRequests = 0
		service.ErrorCount = 0
	}
}

// refreshLevel recomputes the error rate and grades the dependency.
// Caller must hold the lock.
func (dm *DegradationManager) refreshLevel(service *ServiceHealth) {
	oldLevel := service.Level
	now := time.Now()

	if service.TotalRequests > 0 {
		service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)
	} else {
		service.ErrorRate = 0
	}

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

	// A dependency stuck degraded for too long is treated as down
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

func copyHealth(service *ServiceHealth) *ServiceHealth {
	return &ServiceHealth{
		ServiceName:   service.ServiceName,
		Level:         service.Level,
		ErrorRate:     service.ErrorRate,
		TotalRequests: service.TotalRequests,
		ErrorCount:    service.ErrorCount,
		LastError:     service.LastError,
		LastErrorTime: service.LastErrorTime,
		DegradedSince: service.DegradedSince,
		StatusMessage: service.StatusMessage,
	}
}

// GetServiceHealth returns a copy of one dependency's health
func (dm *DegradationManager) GetServiceHealth(serviceName string) (*ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return nil, false
	}
	return copyHealth(service), true
}

// GetAllServiceHealth returns copies of every dependency's health
func (dm *DegradationManager) GetAllServiceHealth() map[string]*ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]*ServiceHealth, len(dm.services))
	for name, service := range dm.services {
		result[name] = copyHealth(service)
	}
	return result
}

// IsServiceAvailable reports whether a dependency is usable at all.
// Only emergency means unavailable; degraded dependencies still serve.
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return false
	}
	return service.Level != LevelEmergency
}

// GetThrottleFactor returns the fraction of normal load the dependency
// should receive
func (dm *DegradationManager) GetThrottleFactor(serviceName string) float64 {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	service, exists := dm.services[serviceName]
	if !exists {
		return 1.0
	}

	switch service.Level {
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

// StartHealthChecks probes registered dependencies on the configured
// interval until the context is cancelled
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.runHealthChecks(ctx)
		}
	}
}

func (dm *DegradationManager) runHealthChecks(ctx context.Context) {
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

			if err := check(checkCtx); err != nil {
				dm.RecordError(name, errors.WrapError(err, "health check failed for service %s", name))
			} else {
				dm.RecordRequest(name, true)
			}
		}(serviceName, healthCheck)
	}
}

// ResetService clears a dependency's counters and returns it to normal
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
		service.windowStart = time.Now()

		slog.Info("Service health reset", "service", serviceName)
	}
}

// GracefulShutdown logs the final state of every dependency
func (dm *DegradationManager) GracefulShutdown() {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	for name, service := range dm.services {
		slog.Info("Final service status",
			"service", name,
			"level", service.Level.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

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

// GetThrottleFactor returns the load fraction for a service globally
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

// ShutdownDegradation logs final dependency state during shutdown
func ShutdownDegradation() {
	globalDegradationManager.GracefulShutdown()
}
