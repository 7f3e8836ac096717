package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/fairscan/internal/types"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxContentLength int           `json:"max_content_length"` // characters, not bytes
	EnableCORS       bool          `json:"enable_cors"`
	AllowedOrigins   []string      `json:"allowed_origins"`
	TrustedProxies   []string      `json:"trusted_proxies"`
	RequestTimeout   time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxContentLength: types.MaxContentLength,
		EnableCORS:       true,
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies:   []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:   30 * time.Second,
	}
}

// SecurityMiddleware provides request validation and hardening middleware.
// Rate limiting lives in the ratelimit package; this layer only validates.
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// ValidateContent checks submitted content for structural problems. The
// content itself is never altered: analysis records must carry the text
// byte-identical to the submission, so validation rejects but never rewrites.
func (sm *SecurityMiddleware) ValidateContent(content string) error {
	if utf8.RuneCountInString(content) > sm.config.MaxContentLength {
		return fmt.Errorf("content exceeds maximum length of %d characters", sm.config.MaxContentLength)
	}

	if strings.Contains(content, "\x00") {
		return fmt.Errorf("content contains invalid characters")
	}

	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid UTF-8 encoding")
	}

	return nil
}

// SanitizeField strips markup from free-form metadata fields (source names,
// author strings). Never applied to the analyzed content itself.
func (sm *SecurityMiddleware) SanitizeField(input string) string {
	input = strings.TrimSpace(input)

	scriptPattern := regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	input = scriptPattern.ReplaceAllString(input, "")

	htmlTagPattern := regexp.MustCompile(`<[^>]+>`)
	input = htmlTagPattern.ReplaceAllString(input, "")

	input = regexp.MustCompile(`\s+`).ReplaceAllString(input, " ")

	return input
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("X-XSS-Protection", "1; mode=block")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	if contentType != "" {
		found := false
		for _, allowed := range allowedTypes {
			if strings.Contains(strings.ToLower(contentType), allowed) {
				found = true
				break
			}
		}

		if !found {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)

	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// MaxBodySize rejects request bodies past the limit before they are read
func (sm *SecurityMiddleware) MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
