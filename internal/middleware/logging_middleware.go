// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// CorrelationHeader carries the request correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths   []string `json:"skip_paths"`
	LogBody     bool     `json:"log_body"`
	MaxBodySize int      `json:"max_body_size"` // bytes
	// SlowThreshold marks completed requests as slow.
	SlowThreshold time.Duration `json:"slow_threshold"`
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/ready",
		},
		LogBody:       false,
		MaxBodySize:   1024, // 1KB
		SlowThreshold: 2 * time.Second,
	}
}

// LoggingMiddleware attaches a correlation ID and the session ID to the
// request context and logs every request once it completes.
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header(CorrelationHeader, correlationID)

		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		if id := c.Param("id"); id != "" {
			ctx = telemetry.WithSessionID(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)

		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      c.FullPath(),
			"user_agent": c.Request.UserAgent(),
			"remote_ip":  c.ClientIP(),
		}

		if config.LogBody && c.Request.Body != nil {
			bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(config.MaxBodySize)))
			if err == nil {
				c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), c.Request.Body))
				fields["body"] = string(bodyBytes)
			}
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			logBody:        config.LogBody,
			maxBodySize:    config.MaxBodySize,
		}
		c.Writer = writer

		c.Next()

		duration := time.Since(start)
		fields["status"] = c.Writer.Status()
		fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
		fields["size"] = c.Writer.Size()
		if config.LogBody && writer.body.Len() > 0 {
			fields["response_body"] = writer.body.String()
		}
		if len(c.Errors) > 0 {
			errs := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				errs[i] = err.Error()
			}
			fields["errors"] = errs
		}

		logEntry := telemetry.LogFromContext(ctx).WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			logEntry.Error("HTTP request completed with server error")
		case c.Writer.Status() >= 400:
			logEntry.Warn("HTTP request completed with client error")
		case duration > config.SlowThreshold:
			logEntry.Warn("HTTP request completed (slow)")
		default:
			logEntry.Info("HTTP request completed")
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body        *bytes.Buffer
	logBody     bool
	maxBodySize int
}

// Write captures the response body if logging is enabled
func (w *responseWriter) Write(data []byte) (int, error) {
	if w.logBody && w.body.Len() < w.maxBodySize {
		remaining := w.maxBodySize - w.body.Len()
		if len(data) > remaining {
			w.body.Write(data[:remaining])
		} else {
			w.body.Write(data)
		}
	}
	return w.ResponseWriter.Write(data)
}

// WriteString captures the response body if logging is enabled
func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
