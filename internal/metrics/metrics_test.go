package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Independent(t *testing.T) {
	// private registries: creating twice must not panic on duplicate registration
	a := NewMetrics()
	b := NewMetrics()

	a.BarsTotal.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.BarsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BarsTotal))
}

func TestCircuitStateChanged(t *testing.T) {
	m := NewMetrics()
	m.CircuitStateChanged(1, true)
	m.CircuitStateChanged(2, false)
	m.CircuitStateChanged(1, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerState))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RedisCircuitBreakerTrips))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ResultsTotal.WithLabelValues("SMA").Add(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `indengine_results_total{indicator="SMA"} 5`), body)
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.StartedAt = now.Add(-time.Minute)
	h.now = func() time.Time { return now }

	get := func() (int, healthReport) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var r healthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		return rec.Code, r
	}

	code, r := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", r.Status)

	h.SetEngineOK(true)
	h.SetRedisConnected(true)
	code, r = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", r.Status)

	h.SetSQLiteOK(true)
	h.ObserveBar(now.Add(-2*time.Second), 3)
	code, r = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, 3, r.Symbols)
	assert.Equal(t, "2s", r.BarAge)
	assert.Equal(t, "1m0s", r.Uptime)
}
