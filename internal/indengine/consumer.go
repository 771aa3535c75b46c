package indengine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tastream/internal/logger"
	"tastream/internal/model"
)

// startConsumer starts the XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	go func() {
		if err := svc.consumer.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil && ctx.Err() == nil {
			svc.log.Error("consumer stopped", slog.Any("err", err))
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	go svc.consumer.StartPELReclaimer(ctx, svc.streams, svc.cfg.PELInterval, svc.cfg.PELMinIdle, svc.barCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
		})
	svc.log.Info("PEL reclaimer started",
		slog.Duration("interval", svc.cfg.PELInterval), slog.Duration("min_idle", svc.cfg.PELMinIdle))
}

// processLoop feeds consumed bars into the engine until ctx is done.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tb, ok := <-svc.barCh:
			if !ok {
				return
			}
			svc.handle(ctx, tb)
		}
	}
}

// handle runs one bar through the engine and fans the results out. Bars not
// newer than the last one applied for their symbol are skipped, so stream
// redeliveries after a restart never advance indicator state twice. Reports
// whether the bar was applied.
func (svc *Service) handle(ctx context.Context, tb model.TimedBar) bool {
	svc.mu.Lock()
	if last, ok := svc.watermarks[tb.Symbol]; ok && !tb.TS.After(last) {
		svc.mu.Unlock()
		svc.prom.StaleBarsTotal.Inc()
		return false
	}
	start := time.Now()
	results := svc.engine.Process(tb)
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())
	svc.advanceLocked(tb.Symbol, tb.TS)
	svc.recordLocked(results)
	symbols := len(svc.latest)
	svc.mu.Unlock()

	svc.prom.BarsTotal.Inc()
	svc.prom.Symbols.Set(float64(symbols))
	for _, r := range results {
		if r.Ready {
			svc.prom.ResultsTotal.WithLabelValues(indicatorType(r.Name)).Inc()
		}
	}
	svc.health.ObserveBar(tb.TS, symbols)

	svc.archiveBar(tb)
	if svc.results != nil && len(results) > 0 {
		if err := svc.results.WriteResultBatch(ctx, results); err != nil {
			svc.log.Warn("publish results failed", slog.String("symbol", tb.Symbol), slog.Any("err", err))
		}
	}
	svc.hub.Broadcast(results)

	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(tb.Symbol, tb.TS))
	svc.log.Debug("bar processed", append(logger.LogWithTrace(tctx),
		slog.String("symbol", tb.Symbol), slog.Int("results", len(results)))...)
	return true
}

// archiveBar hands the bar to the SQLite writer without blocking.
func (svc *Service) archiveBar(tb model.TimedBar) {
	if svc.archive == nil {
		return
	}
	select {
	case svc.archive <- tb:
	default:
		svc.log.Warn("bar archive queue full, dropping bar", slog.String("symbol", tb.Symbol))
	}
}

func (svc *Service) advanceLocked(symbol string, ts time.Time) {
	if ts.After(svc.watermarks[symbol]) {
		svc.watermarks[symbol] = ts
	}
}

func (svc *Service) recordLocked(results []model.IndicatorResult) {
	for _, r := range results {
		m := svc.latest[r.Symbol]
		if m == nil {
			m = make(map[string]model.IndicatorResult)
			svc.latest[r.Symbol] = m
		}
		m[r.Name] = r
	}
}

// indicatorType returns the type part of a result name: "SMA_20" -> "SMA".
func indicatorType(name string) string {
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return name
}
