package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName    = "github.com/meetsmatch/ridemap/internal/monitoring"
	instrumentationVersion = "1.0.0"
)

// HTTPMetrics records request metrics. Spans come from otelgin.
type HTTPMetrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	httpResponseSize    metric.Int64Histogram
	httpActiveRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the instruments on mp, or on the global provider
// when mp is nil. activeSessions, when set, backs the ridemap_sessions_active
// gauge.
func NewHTTPMetrics(mp metric.MeterProvider, activeSessions func() int) (*HTTPMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	httpResponseSize, err := meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_response_size_bytes histogram: %w", err)
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_active_requests counter: %w", err)
	}

	if activeSessions != nil {
		_, err = meter.Int64ObservableGauge(
			"ridemap_sessions_active",
			metric.WithDescription("Number of live map sessions"),
			metric.WithUnit("1"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(activeSessions()))
				return nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ridemap_sessions_active gauge: %w", err)
		}
	}

	return &HTTPMetrics{
		httpRequestsTotal:   httpRequestsTotal,
		httpRequestDuration: httpRequestDuration,
		httpResponseSize:    httpResponseSize,
		httpActiveRequests:  httpActiveRequests,
	}, nil
}

// GinMiddleware returns a Gin middleware recording per-route metrics.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		base := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
		)

		m.httpActiveRequests.Add(ctx, 1, base)
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		m.httpActiveRequests.Add(ctx, -1, base)

		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(status)),
			attribute.String("status_class", getStatusClass(status)),
		)
		m.httpRequestsTotal.Add(ctx, 1, attrs)
		m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
		if size := c.Writer.Size(); size > 0 {
			m.httpResponseSize.Record(ctx, int64(size), attrs)
		}
	}
}

// getStatusClass returns the HTTP status class (2xx, 3xx, etc.)
func getStatusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "1xx"
	}
}
