package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"ledger/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = log.FieldRequestID

	// SessionHeader carries the MCP session id on streamable HTTP requests.
	SessionHeader = "Mcp-Session-Id"
)

// Middleware assigns a request id to every HTTP request and logs its outcome.
type Middleware struct {
	extractIP func(*http.Request) string
	metrics   *Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests  int64
	FailedRequests int64
	// LastResponseTime in microseconds.
	LastResponseTime int64
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		metrics:   &Metrics{},
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.DebugContext(ctx, "HTTP request started", log.NewFields().
			With(log.FieldComponent, log.ComponentHTTP).
			WithRequestID(requestID).
			With("method", r.Method).
			With("path", r.URL.Path).
			With(log.FieldClientIP, clientIP).
			With(log.FieldSessionID, r.Header.Get(SessionHeader)).
			With("user_agent", r.Header.Get("User-Agent")).
			With("content_length", r.ContentLength).
			ToSlice()...)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.StoreInt64(&m.metrics.LastResponseTime, duration.Microseconds())

		logLevel := slog.LevelInfo
		if rw.statusCode >= 400 && rw.statusCode < 500 {
			logLevel = slog.LevelWarn
		} else if rw.statusCode >= 500 {
			logLevel = slog.LevelError
		}
		if rw.statusCode >= 400 {
			atomic.AddInt64(&m.metrics.FailedRequests, 1)
		}

		slog.Log(ctx, logLevel, "HTTP request completed", log.NewFields().
			With(log.FieldComponent, log.ComponentHTTP).
			WithRequestID(requestID).
			With("method", r.Method).
			With("path", r.URL.Path).
			With(log.FieldStatusCode, rw.statusCode).
			WithDuration(duration.Milliseconds()).
			With("duration_human", duration.String()).
			With(log.FieldClientIP, clientIP).
			With(log.FieldSuccess, rw.statusCode < 400).
			ToSlice()...)
	})
}

// responseWriter captures the status code. It forwards Flush so server-sent
// event streams keep working behind the middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:    atomic.LoadInt64(&m.metrics.TotalRequests),
		FailedRequests:   atomic.LoadInt64(&m.metrics.FailedRequests),
		LastResponseTime: atomic.LoadInt64(&m.metrics.LastResponseTime),
	}
}
