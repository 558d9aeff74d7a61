package telemetry

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/meetsmatch/ridemap/internal/telemetry"

// InstrumentRedisClient adds OpenTelemetry tracing to a Redis client
func InstrumentRedisClient(client *redis.Client) {
	client.AddHook(redisotel.NewTracingHook())
}

// NewHTTPClient returns a client whose transport emits a client span for
// every outbound request, named after the upstream service.
func NewHTTPClient(service string, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := *base
	client.Transport = otelhttp.NewTransport(transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return service + " " + r.Method + " " + r.URL.Path
		}),
	)
	return &client
}

// UpstreamMetrics counts outcomes of calls to the geocoding and routing services
type UpstreamMetrics struct {
	requests metric.Int64Counter
	dropped  metric.Int64Counter
}

// NewUpstreamMetrics registers the upstream counters on the global meter provider
func NewUpstreamMetrics() (*UpstreamMetrics, error) {
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter(
		"ridemap_upstream_requests_total",
		metric.WithDescription("Outbound geocoding and routing requests by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"ridemap_stale_results_total",
		metric.WithDescription("Upstream results discarded because a newer request superseded them"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{requests: requests, dropped: dropped}, nil
}

// RecordRequest counts one finished upstream call. Safe on a nil receiver.
func (m *UpstreamMetrics) RecordRequest(ctx context.Context, service, outcome string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", outcome),
	))
}

// RecordStale counts one discarded stale result. Safe on a nil receiver.
func (m *UpstreamMetrics) RecordStale(ctx context.Context, service string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}
