package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestRecorders(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordProbe(ctx, "refused")
	m.RecordProbe(ctx, "refused")
	m.RecordProbe(ctx, "ok")
	m.RecordRead(ctx, "limit", "hit")
	m.RecordRead(ctx, "user:42:limit", "hit")
	m.RecordHTTPRequest(ctx, http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, int64(2), collectSum(t, reader, "redis_gateway_probes_total", attribute.String("outcome", "refused")))
	assert.Equal(t, int64(1), collectSum(t, reader, "redis_gateway_probes_total", attribute.String("outcome", "ok")))
	// reads from different keys share one series
	assert.Equal(t, int64(2), collectSum(t, reader, "redis_gateway_reads_total", attribute.String("result", "hit")))
	assert.Equal(t, int64(0), collectSum(t, reader, "redis_gateway_reads_total",
		attribute.String("key", "limit"), attribute.String("result", "hit")))
	assert.Equal(t, int64(1), collectSum(t, reader, "redis_gateway_http_requests_total",
		attribute.String("method", http.MethodGet),
		attribute.String("path", "/healthz"),
		attribute.Int("status", http.StatusOK)))
}

func TestSetup_ServesPrometheus(t *testing.T) {
	m, handler, err := Setup("redis-gateway-test")
	require.NoError(t, err)

	m.RecordProbe(context.Background(), "ok")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "redis_gateway_probes_total")
}
