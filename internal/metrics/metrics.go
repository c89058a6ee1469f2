package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	ProbeAttempts metric.Int64Counter
	Reads         metric.Int64Counter
	HTTPRequests  metric.Int64Counter
	HTTPDuration  metric.Float64Histogram
}

// Setup installs a Prometheus-backed meter provider as the global provider
// and returns the instruments plus the handler serving them. It registers
// with the default Prometheus registry, so call it once per process.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ProbeAttempts, err = meter.Int64Counter(
		"redis_gateway_probes_total",
		metric.WithDescription("Liveness probes sent while connecting, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.Reads, err = meter.Int64Counter(
		"redis_gateway_reads_total",
		metric.WithDescription("Typed reads, by key and result"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequests, err = meter.Int64Counter(
		"redis_gateway_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"redis_gateway_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordProbe(ctx context.Context, outcome string) {
	m.ProbeAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRead counts a read by result only. The key stays off the labels so
// the series count does not grow with the keyspace.
func (m *Metrics) RecordRead(ctx context.Context, _, result string) {
	m.Reads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}
