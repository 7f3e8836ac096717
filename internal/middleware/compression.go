package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ExcludedPaths    []string // Path prefixes that are never compressed
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		CompressionLevel: 6,
		ExcludedPaths:    []string{"/health", "/debug/pprof"},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	return &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns the Gin middleware. Responses are compressed when the
// client advertises gzip support and the path is not excluded.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.shouldCompress(c) {
			cm.stats.RecordRequest(0, 0, false)
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		counter := &countingWriter{inner: c.Writer}
		gz.Reset(counter)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		// Length of the compressed stream is unknown up front
		c.Writer.Header().Del("Content-Length")

		wrapped := &gzipResponseWriter{ResponseWriter: c.Writer, gzipWriter: gz}
		c.Writer = wrapped

		defer func() {
			gz.Close()
			cm.stats.RecordRequest(wrapped.bytesIn, counter.bytesOut, true)
			cm.pool.Put(gz)
			c.Writer = wrapped.ResponseWriter
		}()

		c.Next()
	}
}

func (cm *CompressionMiddleware) shouldCompress(c *gin.Context) bool {
	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	// Upgraded connections must not be wrapped
	if c.GetHeader("Upgrade") != "" {
		return false
	}

	path := c.Request.URL.Path
	for _, prefix := range cm.config.ExcludedPaths {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}

	return true
}

// gzipResponseWriter routes handler writes through the gzip writer
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzipWriter *gzip.Writer
	bytesIn    int64
}

func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.bytesIn += int64(len(data))
	return gzw.gzipWriter.Write(data)
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

func (gzw *gzipResponseWriter) Flush() {
	gzw.gzipWriter.Flush()
	gzw.ResponseWriter.Flush()
}

// countingWriter tracks how many compressed bytes reached the client
type countingWriter struct {
	inner    io.Writer
	bytesOut int64
}

func (cw *countingWriter) Write(data []byte) (int, error) {
	n, err := cw.inner.Write(data)
	cw.bytesOut += int64(n)
	return n, err
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
