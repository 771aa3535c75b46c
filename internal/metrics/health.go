package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the indicator engine's health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool
	SQLiteOK       bool
	EngineOK       bool
	LastBarTime    time.Time
	Symbols        int

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// ObserveBar records the timestamp of the last processed bar and the number
// of symbols with state.
func (h *HealthStatus) ObserveBar(ts time.Time, symbols int) {
	h.mu.Lock()
	h.LastBarTime = ts
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

type healthReport struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	EngineOK        bool    `json:"engine_ok"`
	Symbols         int     `json:"symbols"`
	LastBarTime     string  `json:"last_bar_time,omitempty"`
	BarAge          string  `json:"bar_age,omitempty"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// report computes the overall status. Redis carries the bars, so losing it
// (or the engine) is unhealthy; losing SQLite only degrades persistence.
func (h *HealthStatus) report() (healthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	r := healthReport{
		Status:          "healthy",
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		EngineOK:        h.EngineOK,
		Symbols:         h.Symbols,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}
	if !h.LastBarTime.IsZero() {
		r.LastBarTime = h.LastBarTime.Format(time.RFC3339)
		r.BarAge = now.Sub(h.LastBarTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	code := http.StatusOK
	switch {
	case !h.EngineOK || !h.RedisConnected:
		r.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !h.SQLiteOK:
		r.Status = "degraded"
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
