package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine. Metrics are
// registered on a private registry so several instances can coexist (tests,
// the backtest CLI).
type Metrics struct {
	registry *prometheus.Registry

	BarsTotal        prometheus.Counter
	InvalidBarsTotal prometheus.Counter
	StaleBarsTotal   prometheus.Counter
	ResultsTotal     *prometheus.CounterVec // labels: indicator
	ComputeDur       prometheus.Histogram
	Symbols          prometheus.Gauge

	SnapshotDur      prometheus.Histogram
	SnapshotFailures *prometheus.CounterVec // labels: store

	PELMessagesReclaimed prometheus.Counter
	ConfigReloads        *prometheus.CounterVec // labels: source

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedResults     prometheus.Gauge
	RedisDroppedResults      prometheus.Counter

	WSClients   prometheus.Gauge
	WSDropped   prometheus.Counter
	BarStoreDur prometheus.Histogram
}

// NewMetrics creates and registers all metrics, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	computeBuckets := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_bars_total",
			Help: "Validated bars processed by the indicator engine",
		}),
		InvalidBarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_invalid_bars_total",
			Help: "Stream messages dropped because they did not hold a valid bar",
		}),
		StaleBarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_stale_bars_total",
			Help: "Bars skipped because they were not newer than the symbol's last bar",
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_results_total",
			Help: "Indicator values computed (by indicator type)",
		}, []string{"indicator"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Indicator engine compute latency per bar",
			Buckets: computeBuckets,
		}),
		Symbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_symbols",
			Help: "Symbols with live indicator state",
		}),

		SnapshotDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_snapshot_duration_seconds",
			Help:    "Time to capture and persist an engine snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_snapshot_failures_total",
			Help: "Snapshot writes that failed (by store)",
		}, []string{"store"}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_config_reloads_total",
			Help: "Indicator config reloads applied (by source)",
		}, []string{"source"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_buffered_results",
			Help: "Results held locally while Redis is unavailable",
		}),
		RedisDroppedResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_dropped_results_total",
			Help: "Buffered results dropped because the local buffer was full",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected websocket result subscribers",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_dropped_total",
			Help: "Websocket messages dropped for slow clients",
		}),
		BarStoreDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_bar_store_duration_seconds",
			Help:    "SQLite bar archive batch latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BarsTotal,
		m.InvalidBarsTotal,
		m.StaleBarsTotal,
		m.ResultsTotal,
		m.ComputeDur,
		m.Symbols,
		m.SnapshotDur,
		m.SnapshotFailures,
		m.PELMessagesReclaimed,
		m.ConfigReloads,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedResults,
		m.RedisDroppedResults,
		m.WSClients,
		m.WSDropped,
		m.BarStoreDur,
	)

	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CircuitStateChanged records a Redis circuit breaker transition. The state
// values follow the breaker's numbering.
func (m *Metrics) CircuitStateChanged(to int, tripped bool) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if tripped {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
