package indengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"tastream/internal/indicator"
)

// snapshotLoop periodically saves engine state to every snapshot store.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(svc.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.saveSnapshot(); err != nil {
				svc.log.Warn("checkpoint incomplete", slog.Any("err", err))
			}
		}
	}
}

// captureSnapshot copies the engine state under the lock, or returns nil
// before the engine exists. The stream ID is a time-based marker: replaying
// from it after a restart covers every bar added since the checkpoint.
func (svc *Service) captureSnapshot() *indicator.EngineSnapshot {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.engine == nil {
		return nil
	}

	snap := indicator.SnapshotEngine(svc.engine, streamMarker(svc.now()))
	snap.Watermarks = make(map[string]time.Time, len(svc.watermarks))
	for sym, ts := range svc.watermarks {
		snap.Watermarks[sym] = ts
	}
	return snap
}

// saveSnapshot writes one checkpoint to every store. Each failing store is
// counted and reported; the others are still written.
func (svc *Service) saveSnapshot() error {
	start := time.Now()
	snap := svc.captureSnapshot()
	if snap == nil {
		return errors.New("engine not started")
	}
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var errs []error
	for _, t := range svc.snapshots {
		if err := t.store.SaveSnapshotJSON(data); err != nil {
			svc.prom.SnapshotFailures.WithLabelValues(t.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}
	svc.prom.SnapshotDur.Observe(time.Since(start).Seconds())
	svc.log.Info("checkpoint saved",
		slog.Int("symbols", len(snap.Symbols)), slog.String("stream_id", snap.StreamID), slog.Int("bytes", len(data)))
	return errors.Join(errs...)
}

// readSnapshot returns the first decodable snapshot, trying stores in order.
func (svc *Service) readSnapshot() *indicator.EngineSnapshot {
	for _, t := range svc.snapshots {
		data, err := t.store.ReadLatestSnapshotJSON()
		if err != nil {
			svc.log.Warn("snapshot read failed", slog.String("store", t.name), slog.Any("err", err))
			continue
		}
		snap, err := indicator.UnmarshalSnapshot(data)
		if err != nil {
			svc.log.Warn("snapshot unusable", slog.String("store", t.name), slog.Any("err", err))
			continue
		}
		if snap != nil {
			svc.log.Info("snapshot found", slog.String("store", t.name))
			return snap
		}
	}
	return nil
}

// streamMarker converts a time into a Redis stream ID.
func streamMarker(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-0"
}
