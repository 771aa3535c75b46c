// Package config loads the indicator engine configuration from an optional
// YAML file and the environment. Environment variables win over the file; a
// .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tastream/internal/indicator"
	"tastream/internal/logger"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	HTTPAddr      string

	// Stream consumption
	ConsumerGroup string
	ConsumerName  string
	Symbols       []string // empty: discover every bars:* stream
	PELInterval   time.Duration
	PELMinIdle    time.Duration

	// Indicators
	IndicatorSpecs   string // "SMA:20,EMA:9,RSI:14d,BB:20:2"; empty for defaults
	SnapshotInterval time.Duration
	SnapshotKey      string
	BackfillBars     int // bars per symbol replayed from SQLite on start; 0 = longest period

	// Redis circuit breaker
	BreakerMaxFailures int
	BreakerReset       time.Duration
	ResultBufferSize   int
}

// env maps config keys to their environment variable names.
var env = map[string]string{
	"log_level":             "LOG_LEVEL",
	"redis.addr":            "REDIS_ADDR",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"sqlite.path":           "SQLITE_PATH",
	"http.addr":             "INDENGINE_HTTP_ADDR",
	"consumer.group":        "CONSUMER_GROUP",
	"consumer.name":         "CONSUMER_NAME",
	"consumer.symbols":      "SUBSCRIBE_SYMBOLS",
	"consumer.pel_interval": "PEL_RECLAIM_INTERVAL",
	"consumer.pel_min_idle": "PEL_MIN_IDLE",
	"indicators.specs":      "INDICATOR_CONFIGS",
	"snapshot.interval":     "SNAPSHOT_INTERVAL",
	"snapshot.key":          "SNAPSHOT_KEY",
	"backfill.bars":         "BACKFILL_BARS",
	"breaker.max_failures":  "BREAKER_MAX_FAILURES",
	"breaker.reset":         "BREAKER_RESET",
	"breaker.buffer":        "RESULT_BUFFER_SIZE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("sqlite.path", "data/bars.db")
	v.SetDefault("http.addr", ":9095")
	v.SetDefault("consumer.group", "indengine")
	v.SetDefault("consumer.name", "worker-1")
	v.SetDefault("consumer.symbols", "")
	v.SetDefault("consumer.pel_interval", "30s")
	v.SetDefault("consumer.pel_min_idle", "60s")
	v.SetDefault("indicators.specs", "")
	v.SetDefault("snapshot.interval", "30s")
	v.SetDefault("snapshot.key", "indengine:snapshot")
	v.SetDefault("backfill.bars", 0)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.reset", "10s")
	v.SetDefault("breaker.buffer", 10000)
}

// Load reads configuration. path names a YAML file; when empty, an optional
// "tastream.yaml" in the working directory is used.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tastream")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:           v.GetString("log_level"),
		RedisAddr:          v.GetString("redis.addr"),
		RedisPassword:      v.GetString("redis.password"),
		RedisDB:            v.GetInt("redis.db"),
		SQLitePath:         v.GetString("sqlite.path"),
		HTTPAddr:           v.GetString("http.addr"),
		ConsumerGroup:      v.GetString("consumer.group"),
		ConsumerName:       v.GetString("consumer.name"),
		Symbols:            splitList(v.Get("consumer.symbols")),
		PELInterval:        v.GetDuration("consumer.pel_interval"),
		PELMinIdle:         v.GetDuration("consumer.pel_min_idle"),
		IndicatorSpecs:     v.GetString("indicators.specs"),
		SnapshotInterval:   v.GetDuration("snapshot.interval"),
		SnapshotKey:        v.GetString("snapshot.key"),
		BackfillBars:       v.GetInt("backfill.bars"),
		BreakerMaxFailures: v.GetInt("breaker.max_failures"),
		BreakerReset:       v.GetDuration("breaker.reset"),
		ResultBufferSize:   v.GetInt("breaker.buffer"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks intervals, the log level and the indicator specs.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"snapshot interval":    c.SnapshotInterval,
		"PEL reclaim interval": c.PELInterval,
		"PEL min idle":         c.PELMinIdle,
		"breaker reset":        c.BreakerReset,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.BreakerMaxFailures <= 0 {
		return fmt.Errorf("breaker max failures must be positive, got %d", c.BreakerMaxFailures)
	}
	if _, err := c.Indicators(); err != nil {
		return fmt.Errorf("indicator specs: %w", err)
	}
	return nil
}

// Indicators parses IndicatorSpecs into validated indicator configs.
func (c *Config) Indicators() ([]indicator.Config, error) {
	return indicator.ParseSpecs(c.IndicatorSpecs)
}

// splitList accepts either a YAML list or a comma-separated string.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	case []string:
		parts = v
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
