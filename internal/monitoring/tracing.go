package monitoring

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TraceID identifies a request across spans
type TraceID string

// SpanID identifies one span within a trace
type SpanID string

type traceContextKey struct{}

// TraceContext is one span: an operation with timing, tags, and events.
// Active spans back the /debug/traces endpoint; completed spans go to the
// structured log.
type TraceContext struct {
	TraceID     TraceID           `json:"trace_id"`
	SpanID      SpanID            `json:"span_id"`
	ParentID    *SpanID           `json:"parent_id,omitempty"`
	ServiceName string            `json:"service_name"`
	Operation   string            `json:"operation"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Duration    *time.Duration    `json:"duration,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Events      []TraceEvent      `json:"events,omitempty"`
	Error       string            `json:"error,omitempty"`
	Status      SpanStatus        `json:"status"`
}

// SpanStatus represents the outcome of a span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// TraceEvent is a timestamped marker within a span
type TraceEvent struct {
	Name       string                 `json:"name"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Tracer tracks in-flight spans for the service
type Tracer struct {
	serviceName string
	logger      *Logger
	spans       map[SpanID]*TraceContext
	spansMutex  sync.RWMutex
}

// NewTracer creates a new tracer instance
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		logger:      logger,
		spans:       make(map[SpanID]*TraceContext),
	}
}

// StartSpan opens a span, inheriting trace identity from any span already
// on the context
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...SpanOption) (*TraceContext, context.Context) {
	var traceID TraceID
	var parentID *SpanID

	if parent := spanFromContext(ctx); parent != nil {
		traceID = parent.TraceID
		parentID = &parent.SpanID
	} else {
		traceID = TraceID(randomHex(16))
	}

	span := &TraceContext{
		TraceID:     traceID,
		SpanID:      SpanID(randomHex(8)),
		ParentID:    parentID,
		ServiceName: t.serviceName,
		Operation:   operation,
		StartTime:   time.Now(),
		Tags:        make(map[string]string),
		Events:      []TraceEvent{},
		Status:      SpanStatusOK,
	}

	for _, opt := range opts {
		opt(span)
	}

	t.spansMutex.Lock()
	t.spans[span.SpanID] = span
	t.spansMutex.Unlock()

	return span, context.WithValue(ctx, traceContextKey{}, span)
}

// EndSpan closes a span, logs it, and drops it from the active set
func (t *Tracer) EndSpan(span *TraceContext, err error) {
	endTime := time.Now()
	duration := endTime.Sub(span.StartTime)

	span.EndTime = &endTime
	span.Duration = &duration

	if err != nil {
		span.Error = err.Error()
		span.Status = SpanStatusError
		t.logger.SystemLogger("span_error", fmt.Sprintf("TraceID=%s SpanID=%s Error=%s Duration=%v", span.TraceID, span.SpanID, err.Error(), duration))
	}

	t.logSpan(span)

	t.spansMutex.Lock()
	delete(t.spans, span.SpanID)
	t.spansMutex.Unlock()
}

// AddEvent appends a timestamped event to a span
func (t *Tracer) AddEvent(span *TraceContext, name string, attributes map[string]interface{}) {
	span.Events = append(span.Events, TraceEvent{
		Name:       name,
		Timestamp:  time.Now(),
		Attributes: attributes,
	})
}

// SetTag sets a tag on a span
func (t *Tracer) SetTag(span *TraceContext, key, value string) {
	if span.Tags == nil {
		span.Tags = make(map[string]string)
	}
	span.Tags[key] = value
}

// SpanOption configures a span at start time
type SpanOption func(*TraceContext)

// WithTag sets a tag on the span
func WithTag(key, value string) SpanOption {
	return func(span *TraceContext) {
		if span.Tags == nil {
			span.Tags = make(map[string]string)
		}
		span.Tags[key] = value
	}
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return fmt.Sprintf("%x", bytes)
}

func spanFromContext(ctx context.Context) *TraceContext {
	if span, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return span
	}
	return nil
}

func (t *Tracer) logSpan(span *TraceContext) {
	logEntry := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", span.ServiceName,
		"operation", span.Operation,
		"start_time", span.StartTime.Format(time.RFC3339),
		"status", span.Status,
	}

	if span.ParentID != nil {
		logEntry = append(logEntry, "parent_id", *span.ParentID)
	}
	if span.Duration != nil {
		logEntry = append(logEntry, "duration_ms", span.Duration.Milliseconds())
	}
	if span.Error != "" {
		logEntry = append(logEntry, "error", span.Error)
	}
	for k, v := range span.Tags {
		logEntry = append(logEntry, fmt.Sprintf("tag_%s", k), v)
	}
	if len(span.Events) > 0 {
		logEntry = append(logEntry, "event_count", len(span.Events))
	}

	t.logger.Info("Trace Span", logEntry...)
}

// TracingMiddleware wraps each request in a span, exposing its identity in
// the X-Trace-ID and X-Span-ID response headers
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)

		span, ctx := tracer.StartSpan(c.Request.Context(), operation,
			WithTag("http.method", c.Request.Method),
			WithTag("http.url", c.Request.URL.String()),
			WithTag("client_ip", c.ClientIP()),
		)

		c.Header("X-Trace-ID", string(span.TraceID))
		c.Header("X-Span-ID", string(span.SpanID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracer.AddEvent(span, "request_completed", map[string]interface{}{
			"status_code": c.Writer.Status(),
			"size_bytes":  c.Writer.Size(),
		})
		tracer.SetTag(span, "http.status_code", fmt.Sprintf("%d", c.Writer.Status()))

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = fmt.Errorf("request errors: %v", c.Errors)
		}
		tracer.EndSpan(span, spanErr)
	}
}

var globalTracer *Tracer

// InitGlobalTracer initializes the global tracer
func InitGlobalTracer(serviceName string, logger *Logger) {
	globalTracer = NewTracer(serviceName, logger)
}

// GetGlobalTracer returns the global tracer
func GetGlobalTracer() *Tracer {
	return globalTracer
}

// GetSpans returns a snapshot of the active spans
func (t *Tracer) GetSpans() map[SpanID]*TraceContext {
	t.spansMutex.RLock()
	defer t.spansMutex.RUnlock()

	spans := make(map[SpanID]*TraceContext, len(t.spans))
	for id, span := range t.spans {
		spans[id] = span
	}
	return spans
}
