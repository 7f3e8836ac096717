package cache

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/fairscan/internal/monitoring"
	"github.com/gin-gonic/gin"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Cache stores analyze responses keyed by request body. Scoring is
// deterministic, so a byte-identical request within the TTL can be served
// the previously computed result without rerunning the pipeline.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration

	hits   uint64
	misses uint64
}

// NewCache creates a cache with the given TTL and starts its sweeper
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
	go c.sweep()
	return c
}

// sweep drops expired entries so an idle server does not hold stale
// responses indefinitely
func (c *Cache) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		for key, e := range c.entries {
			if e.expired() {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

func bodyKey(body []byte) string {
	return fmt.Sprintf("%x", md5.Sum(body))
}

// Get returns the cached response for a key. Expired entries count as
// misses; the sweeper reclaims them.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || e.expired() {
		return nil, false
	}
	return e.data, true
}

// Set stores a response under a key with the cache's TTL
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes one entry
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Size returns the number of entries, expired or not
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports entry counts and hit ratios for the /cache/stats endpoint
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	for _, e := range c.entries {
		if e.expired() {
			expired++
		}
	}

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return map[string]interface{}{
		"total_items":   len(c.entries),
		"expired_items": expired,
		"active_items":  len(c.entries) - expired,
		"ttl_seconds":   c.ttl.Seconds(),
		"hits":          c.hits,
		"misses":        c.misses,
		"hit_rate":      hitRate,
	}
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Middleware caches successful analyze responses by request body
func (c *Cache) Middleware(metrics *monitoring.Metrics) func(*gin.Context) {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodPost || ctx.Request.URL.Path != "/api/v1/analyze" {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Next()
			return
		}
		// The handler still needs to read the body
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := bodyKey(body)

		if data, found := c.Get(key); found {
			slog.Debug("Response cache hit", "key", key[:8])
			c.recordHit()
			metrics.IncrementCacheHit()
			ctx.Data(http.StatusOK, "application/json", data)
			ctx.Abort()
			return
		}

		c.recordMiss()
		metrics.IncrementCacheMiss()

		capture := &captureWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = capture
		ctx.Next()

		// Only completed analyses are worth replaying
		if ctx.Writer.Status() == http.StatusOK {
			c.Set(key, capture.body.Bytes())
		}
	}
}

// captureWriter tees the response body so it can be stored after the
// handler runs
type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
