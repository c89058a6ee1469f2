package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/actionsystem/redis-gateway/internal/poller"
	"github.com/actionsystem/redis-gateway/pkg/gateway"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockValueReader struct {
	mock.Mock
}

func (m *MockValueReader) Key() string {
	return m.Called().String(0)
}

func (m *MockValueReader) Read(ctx context.Context) *int {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*int)
}

var _ Pinger = (*MockPinger)(nil)
var _ ValueReader = (*MockValueReader)(nil)
var _ ValueReader = (*poller.Poller)(nil)

type recordedRequest struct {
	path   string
	status int
}

type MockMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *MockMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{path, status})
}

func createTestRouter(store Pinger, values ValueReader, metrics MetricsInterface, rpm int) http.Handler {
	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()

	handler := NewHandler(store, values, sugar)
	return handler.Routes(NewMiddleware(sugar, metrics), nil, rpm)
}

func TestHealthz(t *testing.T) {
	router := createTestRouter(&MockPinger{}, &MockValueReader{}, nil, 60)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	testCases := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"redis reachable", nil, http.StatusOK},
		{"redis down", errors.New("cannot connect to 127.0.0.1:6379, connection refused"), http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pinger := &MockPinger{}
			pinger.On("Ping", mock.Anything).Return(tc.pingErr)

			router := createTestRouter(pinger, &MockValueReader{}, nil, 60)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.pingErr != nil {
				var body ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, "REDIS_UNAVAILABLE", body.Code)
				assert.Equal(t, tc.pingErr.Error(), body.Message)
			}
			pinger.AssertExpectations(t)
		})
	}
}

func TestGetValue(t *testing.T) {
	limit := 150

	testCases := []struct {
		name  string
		value *int
	}{
		{"value present", &limit},
		{"value absent", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := &MockValueReader{}
			reader.On("Key").Return("limit")
			if tc.value == nil {
				reader.On("Read", mock.Anything).Return(nil)
			} else {
				reader.On("Read", mock.Anything).Return(tc.value)
			}

			metrics := &MockMetrics{}
			router := createTestRouter(&MockPinger{}, reader, metrics, 60)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/value", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ValueResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "limit", body.Key)
			assert.Equal(t, tc.value, body.Value)
			assert.False(t, body.Timestamp.IsZero())

			require.Len(t, metrics.requests, 1)
			assert.Equal(t, recordedRequest{"/v1/value", http.StatusOK}, metrics.requests[0])
			reader.AssertExpectations(t)
		})
	}
}

func TestGetValue_RateLimited(t *testing.T) {
	reader := &MockValueReader{}
	reader.On("Key").Return("limit")
	reader.On("Read", mock.Anything).Return(nil)

	// 6 rpm gives a burst of one request
	router := createTestRouter(&MockPinger{}, reader, nil, 6)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/value", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/value", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	router := createTestRouter(&MockPinger{}, &MockValueReader{}, nil, 60)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverer(t *testing.T) {
	m := NewMiddleware(nil, nil)
	handler := m.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoutes_WithGateway(t *testing.T) {
	m := miniredis.RunT(t)
	require.NoError(t, m.Set("limit", "150"))

	host, portStr, err := net.SplitHostPort(m.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	gw, err := gateway.New(context.Background(), gateway.Options{Host: host, Port: port, Timeout: 1})
	require.NoError(t, err)
	defer gw.Close()

	p := poller.New(gw, "limit", time.Second, nil, nil)
	router := createTestRouter(gw, p, nil, 60)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/value", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ValueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Value)
	assert.Equal(t, 150, *body.Value)

	m.Close()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
