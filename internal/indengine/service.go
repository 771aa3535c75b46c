// Package indengine runs the indicator engine as a service: it consumes bars
// from Redis Streams, keeps per-symbol indicator state, publishes results to
// Redis and websocket clients, and checkpoints state to Redis and SQLite.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tastream/config"
	"tastream/internal/gateway"
	"tastream/internal/indicator"
	"tastream/internal/metrics"
	"tastream/internal/model"
	redisstore "tastream/internal/store/redis"
	sqlitestore "tastream/internal/store/sqlite"
)

const (
	barBuffer        = 5000
	livenessInterval = 10 * time.Second
	shutdownTimeout  = 3 * time.Second
)

// snapshotTarget is a named snapshot store, tried in order on restore.
type snapshotTarget struct {
	name  string
	store model.SnapshotStore
}

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	// mu guards the engine and everything derived from processed bars.
	mu         sync.Mutex
	engine     *indicator.Engine
	configs    []indicator.Config
	latest     map[string]map[string]model.IndicatorResult
	watermarks map[string]time.Time

	consumer  *redisstore.Consumer
	publisher *redisstore.Publisher
	results   model.ResultWriter
	snapshots []snapshotTarget
	sqlReader *sqlitestore.Reader
	sqlWriter *sqlitestore.Writer
	archive   chan model.TimedBar

	hub    *gateway.Hub
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	streams []string
	barCh   chan model.TimedBar
	now     func() time.Time
}

// newService builds a service with no stores attached.
func newService(cfg *config.Config, configs []indicator.Config) *Service {
	svc := &Service{
		cfg:        cfg,
		log:        slog.Default().With(slog.String("component", "indengine")),
		configs:    configs,
		latest:     make(map[string]map[string]model.IndicatorResult),
		watermarks: make(map[string]time.Time),
		hub:        gateway.NewHub(0),
		prom:       metrics.NewMetrics(),
		health:     metrics.NewHealthStatus(),
		barCh:      make(chan model.TimedBar, barBuffer),
		now:        time.Now,
	}
	svc.hub.OnClients = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	svc.hub.OnDrop = func() { svc.prom.WSDropped.Inc() }
	return svc
}

// New creates a Service from the given config. Redis is required; SQLite
// failures are logged and the service runs without bar history.
func New(cfg *config.Config) (*Service, error) {
	configs, err := cfg.Indicators()
	if err != nil {
		return nil, fmt.Errorf("indicator configs: %w", err)
	}
	svc := newService(cfg, configs)

	svc.consumer, err = redisstore.NewConsumer(redisstore.ConsumerConfig{
		Config: redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}
	svc.consumer.OnInvalid = func(stream string, err error) {
		svc.prom.InvalidBarsTotal.Inc()
	}
	svc.health.SetRedisConnected(true)

	rdb := svc.consumer.Client()
	svc.publisher = redisstore.NewPublisher(rdb)
	svc.results = svc.newBufferedPublisher()
	svc.snapshots = append(svc.snapshots, snapshotTarget{
		name:  "redis",
		store: redisstore.NewSnapshotStore(rdb, cfg.SnapshotKey),
	})

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			svc.log.Warn("create sqlite dir failed", slog.String("dir", dir), slog.Any("err", err))
		}
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		svc.log.Warn("sqlite writer init failed, continuing without bar history", slog.Any("err", err))
	} else {
		svc.sqlWriter.OnCommit = func(_ int, took time.Duration) { svc.prom.BarStoreDur.Observe(took.Seconds()) }
		svc.archive = make(chan model.TimedBar, barBuffer)
		svc.snapshots = append(svc.snapshots, snapshotTarget{name: "sqlite", store: svc.sqlWriter})
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			svc.log.Warn("sqlite reader init failed, continuing without backfill", slog.Any("err", err))
		}
		svc.health.SetSQLiteOK(true)
	}

	return svc, nil
}

func (svc *Service) newBufferedPublisher() *redisstore.BufferedPublisher {
	cb := redisstore.NewCircuitBreaker(svc.cfg.BreakerMaxFailures, svc.cfg.BreakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.prom.CircuitStateChanged(int(to), to == redisstore.StateOpen)
		svc.log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	bp := redisstore.NewBufferedPublisher(svc.publisher, cb, svc.cfg.ResultBufferSize)
	bp.OnBuffer = func(n int) { svc.prom.RedisBufferedResults.Set(float64(n)) }
	bp.OnDropped = func(n int) { svc.prom.RedisDroppedResults.Add(float64(n)) }
	bp.OnFlush = func(int) { svc.prom.RedisBufferedResults.Set(0) }
	return bp
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting indicator engine", slog.Int("indicators", len(svc.configs)))

	snap := svc.readSnapshot()
	if err := svc.restore(snap); err != nil {
		return err
	}
	svc.health.SetEngineOK(true)

	if svc.sqlWriter != nil {
		go svc.sqlWriter.Run(ctx, svc.archive)
	}

	streams, err := svc.buildStreams(ctx)
	if err != nil {
		svc.log.Warn("stream discovery failed", slog.Any("err", err))
	}
	svc.streams = streams
	svc.log.Info("consuming bar streams", slog.Int("streams", len(streams)), slog.Any("names", streams))

	if snap != nil && snap.StreamID != "" {
		svc.replayDelta(ctx, snap.StreamID)
	} else if snap == nil {
		svc.backfill(ctx)
	}

	if len(svc.streams) > 0 {
		if err := svc.consumer.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			svc.log.Warn("consumer group setup failed", slog.Any("err", err))
		}
		go svc.processLoop(ctx)
		if err := svc.consumer.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
			svc.log.Warn("pending recovery failed", slog.Any("err", err))
		}
		svc.startPELReclaimer(ctx)
		svc.startConsumer(ctx)
	} else {
		svc.log.Warn("no bar streams to consume")
	}

	go svc.snapshotLoop(ctx)
	svc.health.StartLivenessChecker(ctx, svc.consumer.Client(), svc.sqlDB(), livenessInterval)
	svc.startConfigSubscriber(ctx)
	srv := svc.startHTTP()

	svc.log.Info("all systems running",
		slog.Duration("snapshot_interval", svc.cfg.SnapshotInterval),
		slog.String("http", svc.cfg.HTTPAddr))

	<-ctx.Done()
	svc.shutdown(srv)
	return nil
}

// restore builds the engine from a snapshot, or cold when there is none.
func (svc *Service) restore(snap *indicator.EngineSnapshot) error {
	engine, err := indicator.NewRestorer(svc.configs).RestoreFromSnap(snap)
	if err != nil {
		return fmt.Errorf("restore engine: %w", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.engine = engine
	if snap != nil {
		for sym, ts := range snap.Watermarks {
			svc.watermarks[sym] = ts
		}
	}
	svc.prom.Symbols.Set(float64(len(engine.Symbols())))
	return nil
}

// backfill warms a cold engine from bars archived in SQLite.
func (svc *Service) backfill(ctx context.Context) {
	if svc.sqlReader == nil {
		return
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()

	n := indicator.NewRestorer(svc.configs).Backfill(svc.engine, svc.sqlReader, time.Time{}, svc.cfg.BackfillBars,
		func(results []model.IndicatorResult) {
			svc.advanceLocked(results[0].Symbol, results[0].TS)
			svc.recordLocked(results)
			if err := svc.results.WriteResultBatch(ctx, results); err != nil {
				svc.log.Warn("backfill publish failed", slog.Any("err", err))
			}
		})
	if n > 0 {
		svc.prom.Symbols.Set(float64(len(svc.engine.Symbols())))
		svc.log.Info("warmed up from sqlite", slog.Int("bars", n))
	}
}

// replayDelta feeds bars added to the streams since the snapshot was taken.
func (svc *Service) replayDelta(ctx context.Context, fromID string) {
	ch := make(chan model.TimedBar, barBuffer)
	go func() {
		defer close(ch)
		for _, stream := range svc.streams {
			if _, err := svc.consumer.ReplayFromID(ctx, stream, fromID, ch); err != nil {
				svc.log.Warn("delta replay failed", slog.String("stream", stream), slog.Any("err", err))
			}
		}
	}()

	n := 0
	for tb := range ch {
		if svc.handle(ctx, tb) {
			n++
		}
	}
	svc.log.Info("replayed delta since snapshot", slog.String("from", fromID), slog.Int("bars", n))
}

// buildStreams returns the configured symbols' streams, or every bars:*
// stream in Redis when no symbols are configured.
func (svc *Service) buildStreams(ctx context.Context) ([]string, error) {
	if len(svc.cfg.Symbols) > 0 {
		streams := make([]string, len(svc.cfg.Symbols))
		for i, sym := range svc.cfg.Symbols {
			streams[i] = model.StreamKey(sym)
		}
		return streams, nil
	}
	return svc.consumer.DiscoverBarStreams(ctx)
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown(srv *http.Server) {
	svc.log.Info("shutdown signal received, saving final snapshot")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Warn("http shutdown", slog.Any("err", err))
		}
	}
	svc.hub.Close()

	if err := svc.saveSnapshot(); err != nil {
		svc.log.Error("final snapshot failed", slog.Any("err", err))
	} else {
		svc.log.Info("final snapshot saved")
	}

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.consumer != nil {
		svc.consumer.Close()
	}
	svc.log.Info("shutdown complete")
}
