package monitoring

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryStats is one sampled snapshot of runtime memory state
type MemoryStats struct {
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	Mallocs    uint64 `json:"mallocs"`
	Frees      uint64 `json:"frees"`

	HeapAlloc    uint64 `json:"heap_alloc_bytes"`
	HeapSys      uint64 `json:"heap_sys_bytes"`
	HeapIdle     uint64 `json:"heap_idle_bytes"`
	HeapInuse    uint64 `json:"heap_inuse_bytes"`
	HeapReleased uint64 `json:"heap_released_bytes"`
	HeapObjects  uint64 `json:"heap_objects"`

	StackInuse uint64 `json:"stack_inuse_bytes"`
	StackSys   uint64 `json:"stack_sys_bytes"`

	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	NumGC         uint32  `json:"num_gc"`
	NumGoroutine  int     `json:"num_goroutine"`

	Timestamp time.Time `json:"timestamp"`
}

// MemoryMonitor samples runtime memory on an interval. The analysis path
// allocates per-request (regex match slices, JSON encoding, audit records),
// so heap growth past the threshold triggers a collection rather than
// waiting for the runtime's pacing.
type MemoryMonitor struct {
	stats       *MemoryStats
	history     []MemoryStats
	maxHistory  int
	interval    time.Duration
	stopChannel chan struct{}
	gcThreshold uint64
	logger      *Logger
	mutex       sync.RWMutex
}

// NewMemoryMonitor creates a memory monitor sampling at the given interval
func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, logger *Logger) *MemoryMonitor {
	return &MemoryMonitor{
		stats:       &MemoryStats{},
		history:     make([]MemoryStats, 0),
		maxHistory:  100,
		interval:    interval,
		stopChannel: make(chan struct{}),
		gcThreshold: gcThreshold,
		logger:      logger,
	}
}

// Start begins sampling in a goroutine
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mm.collectStats()
			case <-mm.stopChannel:
				return
			}
		}
	}()
}

// Stop stops the sampling goroutine
func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

func (mm *MemoryMonitor) collectStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := MemoryStats{
		Alloc:         memStats.Alloc,
		TotalAlloc:    memStats.TotalAlloc,
		Sys:           memStats.Sys,
		Mallocs:       memStats.Mallocs,
		Frees:         memStats.Frees,
		HeapAlloc:     memStats.HeapAlloc,
		HeapSys:       memStats.HeapSys,
		HeapIdle:      memStats.HeapIdle,
		HeapInuse:     memStats.HeapInuse,
		HeapReleased:  memStats.HeapReleased,
		HeapObjects:   memStats.HeapObjects,
		StackInuse:    memStats.StackInuse,
		StackSys:      memStats.StackSys,
		GCCPUFraction: memStats.GCCPUFraction,
		NumGC:         memStats.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	mm.mutex.Lock()
	mm.stats = &stats
	mm.history = append(mm.history, stats)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	mm.mutex.Unlock()

	if memStats.HeapAlloc > mm.gcThreshold {
		start := time.Now()
		runtime.GC()
		mm.logger.PerformanceLogger("threshold_gc", float64(time.Since(start).Milliseconds()), "ms")
	}
}

// GetStats returns the latest sample plus derived rates for the /memory
// endpoint
func (mm *MemoryMonitor) GetStats() map[string]interface{} {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if mm.stats.HeapSys > 0 {
		heapUtilization = float64(mm.stats.HeapInuse) / float64(mm.stats.HeapSys)
	}

	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		window := mm.history[len(mm.history)-1].Timestamp.Sub(mm.history[0].Timestamp).Seconds()
		if window > 0 {
			mallocRate = float64(mm.stats.Mallocs-mm.history[0].Mallocs) / window
		}
	}

	return map[string]interface{}{
		"current": map[string]interface{}{
			"alloc_mb":        mm.stats.Alloc / (1024 * 1024),
			"total_alloc_mb":  mm.stats.TotalAlloc / (1024 * 1024),
			"sys_mb":          mm.stats.Sys / (1024 * 1024),
			"heap_alloc_mb":   mm.stats.HeapAlloc / (1024 * 1024),
			"heap_sys_mb":     mm.stats.HeapSys / (1024 * 1024),
			"heap_idle_mb":    mm.stats.HeapIdle / (1024 * 1024),
			"heap_inuse_mb":   mm.stats.HeapInuse / (1024 * 1024),
			"gc_cpu_fraction": mm.stats.GCCPUFraction,
			"num_gc":          mm.stats.NumGC,
			"num_goroutine":   mm.stats.NumGoroutine,
		},
		"derived": map[string]interface{}{
			"heap_utilization":    heapUtilization,
			"malloc_rate_per_sec": mallocRate,
			"gc_efficiency":       1.0 - mm.stats.GCCPUFraction,
		},
		"history_count":   len(mm.history),
		"gc_threshold_mb": mm.gcThreshold / (1024 * 1024),
	}
}

// ForceGC runs a collection immediately, logging its duration
func (mm *MemoryMonitor) ForceGC() {
	start := time.Now()
	runtime.GC()
	mm.logger.PerformanceLogger("forced_gc", float64(time.Since(start).Milliseconds()), "ms")
}

// OptimizeMemory collects when the heap shows pressure and records what it
// saw. Backs the /memory/optimize endpoint.
func (mm *MemoryMonitor) OptimizeMemory() {
	stats := mm.GetStats()
	derived := stats["derived"].(map[string]interface{})
	heapUtilization := derived["heap_utilization"].(float64)
	gcEfficiency := derived["gc_efficiency"].(float64)

	if heapUtilization > 0.8 {
		mm.ForceGC()
	}

	mm.logger.SystemLogger("memory_optimization", fmt.Sprintf(
		"heap_utilization:%.2f gc_efficiency:%.2f",
		heapUtilization, gcEfficiency,
	))
}
