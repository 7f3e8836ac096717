package audit

import (
	"sync"
	"time"
)

// StatsCache memoizes the aggregate stats between index writes. Stats are
// recomputed from every indexed row, so a short TTL keeps dashboard polls
// cheap without letting results drift far behind.
type StatsCache struct {
	mutex     sync.RWMutex
	stats     *Stats
	expiresAt time.Time
	ttl       time.Duration

	hits        int64
	misses      int64
	invalidated int64
}

// NewStatsCache creates a stats cache with the given TTL
func NewStatsCache(ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsCache{ttl: ttl}
}

// Get returns the cached stats if still fresh
func (c *StatsCache) Get() (*Stats, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stats == nil || time.Now().After(c.expiresAt) {
		c.misses++
		return nil, false
	}

	c.hits++
	return c.stats, true
}

// Set replaces the cached stats and resets the expiry
func (c *StatsCache) Set(stats *Stats) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stats = stats
	c.expiresAt = time.Now().Add(c.ttl)
}

// Invalidate drops the cached stats so the next read recomputes
func (c *StatsCache) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stats != nil {
		c.invalidated++
	}
	c.stats = nil
}

// Stats returns cache counters for the health endpoint
func (c *StatsCache) Stats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":        c.hits,
		"misses":      c.misses,
		"invalidated": c.invalidated,
		"hit_rate":    hitRate,
		"ttl_seconds": c.ttl.Seconds(),
		"has_value":   c.stats != nil,
	}
}
