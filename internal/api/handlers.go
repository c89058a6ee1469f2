package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValueReader reads the value the gateway is watching
type ValueReader interface {
	Key() string
	Read(ctx context.Context) *int
}

type Handler struct {
	store  Pinger
	values ValueReader
	logger *zap.SugaredLogger

	readyTimeout time.Duration
}

func NewHandler(store Pinger, values ValueReader, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		store:        store,
		values:       values,
		logger:       logger,
		readyTimeout: 2 * time.Second,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz succeeds only while Redis answers a ping
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "REDIS_UNAVAILABLE", err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	dto := ValueResponse{
		Key:       h.values.Key(),
		Value:     h.values.Read(r.Context()),
		Timestamp: time.Now().UTC(),
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
