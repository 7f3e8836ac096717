package monitoring

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware records per-request metrics and the structured access
// log entry for every route
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		// A healthy analyze call finishes in milliseconds
		if duration > 5*time.Second {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}
		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// SecurityMonitoringMiddleware flags requests that look like scanner probes.
// It only logs; blocking stays with the rate limiter.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		details := make(map[string]interface{})

		if pattern := matchSQLInjectionPattern(c.Request.URL.RawQuery); pattern != "" {
			details["type"] = "potential_sql_injection"
			details["pattern"] = pattern
			details["query"] = c.Request.URL.RawQuery
		}

		// Analyze payloads are capped at 10k runes; anything far past that
		// in the raw body is not a legitimate client
		if method == http.MethodPost && path == "/api/v1/analyze" && c.Request.ContentLength > 64*1024 {
			details["type"] = "oversized_request_body"
			details["size_bytes"] = c.Request.ContentLength
		}

		if agent := matchScannerUserAgent(userAgent); agent != "" {
			details["type"] = "scanner_user_agent"
			details["user_agent"] = userAgent
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", ip, userAgent, details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	"*/",
	" xp_",
	" sp_",
}

// matchSQLInjectionPattern returns the first injection pattern found in the
// query string, or empty
func matchSQLInjectionPattern(rawQuery string) string {
	query := strings.ToLower(rawQuery)
	for _, pattern := range sqlInjectionPatterns {
		if strings.Contains(query, pattern) {
			return pattern
		}
	}
	return ""
}

var scannerUserAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"openvas",
	"nessus",
}

// matchScannerUserAgent returns the matched scanner name, or empty
func matchScannerUserAgent(userAgent string) string {
	agent := strings.ToLower(userAgent)
	for _, scanner := range scannerUserAgents {
		if strings.Contains(agent, scanner) {
			return scanner
		}
	}
	return ""
}
