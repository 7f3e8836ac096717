package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	failing := errors.New("upstream down")

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return failing })
		assert.ErrorIs(t, err, failing)
	}
	assert.Equal(t, StateOpen, cb.State())

	// While open, fn must not run
	ran := false
	err := cb.Call(func() error { ran = true; return nil })
	require.Error(t, err)
	assert.False(t, ran)

	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, StateOpen, cbErr.State)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerRegistry(t *testing.T) {
	registry := NewCircuitBreakerRegistry()

	a := registry.GetOrCreate("newsapi", CircuitBreakerConfig{})
	b := registry.GetOrCreate("newsapi", CircuitBreakerConfig{FailureThreshold: 99})
	assert.Same(t, a, b, "GetOrCreate must return the existing breaker")

	stats := registry.GetStats()
	require.Contains(t, stats, "newsapi")
	entry := stats["newsapi"].(map[string]interface{})
	assert.Equal(t, "closed", entry["state"])
	assert.Equal(t, 0, entry["failures"])
}

func TestRetryWithConfig_StopsOnSuccess(t *testing.T) {
	config := DefaultRetryConfig()
	config.InitialDelay = time.Millisecond
	config.RetryableErrors = func(error) bool { return true }

	attempts := 0
	err := RetryWithConfig(context.Background(), config, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithConfig_StopsOnNonRetryable(t *testing.T) {
	config := DefaultRetryConfig()
	config.InitialDelay = time.Millisecond
	permanent := errors.New("bad request")
	config.RetryableErrors = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := RetryWithConfig(context.Background(), config, func() error {
		attempts++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithConfig_ExhaustsAttempts(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffFactor:   2.0,
		RetryableErrors: func(error) bool { return true },
	}

	attempts := 0
	transient := errors.New("still failing")
	err := RetryWithConfig(context.Background(), config, func() error {
		attempts++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, attempts)
}

func TestRetryWithConfig_RespectsContextCancellation(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     10,
		InitialDelay:    time.Hour,
		MaxDelay:        time.Hour,
		BackoffFactor:   1.0,
		RetryableErrors: func(error) bool { return true },
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := RetryWithConfig(ctx, config, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryManager_PolicyFallback(t *testing.T) {
	rm := NewRetryManager()
	rm.RegisterPolicy("newsapi", SlowRetryPolicy)

	assert.Equal(t, "slow", rm.GetPolicy("newsapi").Name)
	assert.Equal(t, "standard", rm.GetPolicy("unregistered").Name)
}

func TestDegradationManager_LevelTransitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		want     DegradationLevel
	}{
		{"all successes stays normal", 0, 20, LevelNormal},
		{"under ten percent stays normal", 1, 20, LevelNormal},
		{"ten percent degrades", 2, 20, LevelDegraded},
		{"quarter is critical", 5, 20, LevelCritical},
		{"half is emergency", 10, 20, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := NewDegradationManager(DefaultDegradationConfig())
			dm.RegisterService("audit-index", nil)

			for i := 0; i < tt.total; i++ {
				dm.RecordRequest("audit-index", i >= tt.failures)
			}

			health, ok := dm.GetServiceHealth("audit-index")
			require.True(t, ok)
			assert.Equal(t, tt.want, health.Level)
			assert.Equal(t, int64(tt.total), health.TotalRequests)
			assert.Equal(t, int64(tt.failures), health.ErrorCount)
		})
	}
}

func TestDegradationManager_WindowRotationForgetsOldErrors(t *testing.T) {
	config := DefaultDegradationConfig()
	config.RecoveryTimeWindow = 10 * time.Millisecond

	dm := NewDegradationManager(config)
	dm.RegisterService("redis", nil)

	for i := 0; i < 5; i++ {
		dm.RecordRequest("redis", false)
	}
	health, _ := dm.GetServiceHealth("redis")
	require.Equal(t, LevelEmergency, health.Level)

	time.Sleep(20 * time.Millisecond)
	dm.RecordRequest("redis", true)

	health, _ = dm.GetServiceHealth("redis")
	assert.Equal(t, LevelNormal, health.Level)
	assert.Equal(t, int64(1), health.TotalRequests)
}

func TestDegradationManager_AvailabilityAndThrottle(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("newsapi", nil)

	assert.True(t, dm.IsServiceAvailable("newsapi"))
	assert.Equal(t, 1.0, dm.GetThrottleFactor("newsapi"))
	assert.False(t, dm.IsServiceAvailable("unknown"))
	assert.Equal(t, 1.0, dm.GetThrottleFactor("unknown"))

	for i := 0; i < 10; i++ {
		dm.RecordError("newsapi", errors.New("timeout"))
	}

	assert.False(t, dm.IsServiceAvailable("newsapi"))
	assert.Equal(t, 0.1, dm.GetThrottleFactor("newsapi"))
}

func TestDegradationManager_ResetService(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("redis", nil)

	for i := 0; i < 4; i++ {
		dm.RecordError("redis", errors.New("connection refused"))
	}
	health, _ := dm.GetServiceHealth("redis")
	require.NotEqual(t, LevelNormal, health.Level)

	dm.ResetService("redis")

	health, _ = dm.GetServiceHealth("redis")
	assert.Equal(t, LevelNormal, health.Level)
	assert.Equal(t, int64(0), health.TotalRequests)
	assert.Equal(t, "Service is healthy", health.StatusMessage)
}

func TestDegradationLevel_JSONByName(t *testing.T) {
	data, err := LevelCritical.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"critical"`, string(data))
}

func TestDegradationManager_HealthChecksFeedLevels(t *testing.T) {
	config := DefaultDegradationConfig()
	config.HealthCheckInterval = 5 * time.Millisecond
	config.HealthCheckTimeout = time.Second

	dm := NewDegradationManager(config)
	dm.RegisterService("newsapi", func(ctx context.Context) error {
		return errors.New("probe failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	go dm.StartHealthChecks(ctx)

	assert.Eventually(t, func() bool {
		health, ok := dm.GetServiceHealth("newsapi")
		return ok && health.Level == LevelEmergency
	}, time.Second, 10*time.Millisecond)

	cancel()
}
