package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
)

func TestAnalyzeEndpoint_Performance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	r := setupRouter(t)

	testTexts := []string{
		"The chairman said he wants every businessman on board.",
		"We need a rockstar ninja engineer from a top-tier school.",
		"The committee published its quarterly findings this afternoon.",
		"Our young, energetic team moves fast and breaks things.",
		"Applicants must be digital natives comfortable with change.",
	}

	// Warm up the pipeline and the SQLite index
	for _, text := range testTexts[:2] {
		body, _ := json.Marshal(map[string]string{"content": text})
		w := postAnalyze(t, r, string(body))
		require.Equal(t, http.StatusOK, w.Code)
	}

	var totalDuration time.Duration
	var requestCount int

	for _, text := range testTexts {
		body, _ := json.Marshal(map[string]string{"content": text})

		start := time.Now()
		w := postAnalyze(t, r, string(body))
		duration := time.Since(start)

		totalDuration += duration
		requestCount++

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, duration < 2*time.Second, "Request should complete within 2 seconds, took %v", duration)
	}

	averageDuration := totalDuration / time.Duration(requestCount)
	t.Logf("Performance test completed: %d requests, average response time: %v", requestCount, averageDuration)

	assert.True(t, averageDuration < 500*time.Millisecond, "Average response time should be under 500ms")
}

func TestAnalyzeEndpoint_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	r := setupRouter(t)

	const numRequests = 50
	const numConcurrent = 10

	body, _ := json.Marshal(map[string]string{
		"content": "The chairman wants a rockstar engineer who can man the booth.",
	})

	results := make(chan struct {
		duration time.Duration
		status   int
	}, numRequests)

	for i := 0; i < numConcurrent; i++ {
		go func() {
			for j := 0; j < numRequests/numConcurrent; j++ {
				start := time.Now()
				w := httptest.NewRecorder()
				req, _ := http.NewRequest("POST", "/api/v1/analyze", bytes.NewBuffer(body))
				req.Header.Set("Content-Type", "application/json")
				r.ServeHTTP(w, req)

				results <- struct {
					duration time.Duration
					status   int
				}{time.Since(start), w.Code}
			}
		}()
	}

	var totalDuration time.Duration
	var successCount int
	maxDuration := time.Duration(0)

	for i := 0; i < numRequests; i++ {
		result := <-results
		totalDuration += result.duration
		if result.status == http.StatusOK {
			successCount++
		}
		if result.duration > maxDuration {
			maxDuration = result.duration
		}
	}

	averageDuration := totalDuration / time.Duration(numRequests)
	t.Logf("Load test: %d requests, %d ok, avg %v, max %v", numRequests, successCount, averageDuration, maxDuration)

	assert.Equal(t, numRequests, successCount, "All requests should succeed")
	assert.True(t, averageDuration < 1*time.Second, "Average response time should be under 1 second under load")
}

func TestPipelineTimingBreakdown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping timing breakdown test in short mode")
	}

	catalog, err := analysis.NewCatalog()
	require.NoError(t, err)
	pipeline := analysis.NewPipeline(catalog)

	text := "The chairman said he wants every businessman to hire a rockstar from a top-tier school."

	start := time.Now()
	record, err := pipeline.Analyze(text, "", nil)
	duration := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, record)

	t.Logf("Pipeline timing: total %v, reported %.3fms, hits %d",
		duration, record.ProcessingTimeMS, len(record.Hits))

	// The scanner is pure regex over a short text; anything near a second
	// would mean a catalog pattern went quadratic.
	assert.True(t, duration < 1*time.Second, "Analysis should complete within 1 second")
	assert.Greater(t, record.ProcessingTimeMS, 0.0)
}

func TestAnalyzeEndpoint_ResponseTimeDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping response time distribution test in short mode")
	}

	r := setupRouter(t)

	const numRequests = 100
	durations := make([]time.Duration, numRequests)

	body, _ := json.Marshal(map[string]string{
		"content": "We need a young, energetic digital native who can man the booth.",
	})

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		w := postAnalyze(t, r, string(body))
		durations[i] = time.Since(start)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p50 := durations[numRequests/2]
	p95 := durations[numRequests*95/100]
	p99 := durations[numRequests*99/100]

	t.Logf("Response time distribution: p50 %v, p95 %v, p99 %v", p50, p95, p99)

	assert.True(t, p50 < 200*time.Millisecond, "Median response time should be under 200ms")
	assert.True(t, p99 < 2*time.Second, "99th percentile should be under 2 seconds")
}

func TestErrorRecovery_Performance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping error recovery performance test in short mode")
	}

	r := setupRouter(t)

	validBody, _ := json.Marshal(map[string]string{"content": "The committee published its findings."})
	invalidBody := `{"content": "test", "malformed": }`
	const numRequests = 50

	var validTotal, invalidTotal time.Duration

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		w := postAnalyze(t, r, string(validBody))
		validTotal += time.Since(start)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		w := postAnalyze(t, r, invalidBody)
		invalidTotal += time.Since(start)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	validAvg := validTotal / time.Duration(numRequests)
	invalidAvg := invalidTotal / time.Duration(numRequests)

	t.Logf("Error recovery: valid avg %v, invalid avg %v", validAvg, invalidAvg)

	// Rejections skip scanning and storage, so they must not be slower
	// than the full analysis path.
	assert.True(t, invalidAvg < validAvg*2, "Error handling should not double response time")
}
