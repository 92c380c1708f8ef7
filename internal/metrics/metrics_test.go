package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(zap.NewNop(), reg, reg)
}

func TestMetrics(t *testing.T) {
	m := newTestMetrics()

	m.RecordOrderEvent("intake")
	m.RecordOrderEvent("intake")
	m.RecordFulfillment("delivered", 1.5)
	m.RecordSynthesis("success", 0.7)
	m.RecordKeyRotation(2)
	m.RecordWebhook("ok")
	m.RecordCommand("!tts")
	m.SetActiveOrders(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderEvents.WithLabelValues("intake")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fulfillments.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keyRotations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.keysRemaining))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeOrders))

	// неизвестные имена только логируются
	m.IncrementCounter("unknown_total", "x")
	m.SetGauge("unknown", 1)
	m.ObserveHistogram("unknown", 1)
}

func TestMetricsHandler(t *testing.T) {
	m := newTestMetrics()
	m.RecordOrderEvent("paid")

	rec := httptest.NewRecorder()
	NewHandler(m, zap.NewNop(), nil).MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `order_events_total{event="paid"} 1`)
}

func TestHealthHandler(t *testing.T) {
	m := newTestMetrics()
	keys := 2
	h := NewHandler(m, zap.NewNop(), func() int { return keys })

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 2.0, body["tts_keys_remaining"])

	keys = 0
	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
