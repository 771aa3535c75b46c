package indicator

import (
	"log/slog"
	"time"

	"tastream/internal/model"
)

// Restorer orchestrates indicator engine state restoration on startup.
// It follows a priority chain: snapshot → backfill from stored bars → cold start.
type Restorer struct {
	configs []Config
}

// NewRestorer creates a new Restorer for the given indicator configs.
func NewRestorer(configs []Config) *Restorer {
	return &Restorer{configs: configs}
}

// RestoreFromSnap restores an engine from a snapshot. A nil snapshot, or one
// that fails to restore, yields a fresh engine (cold start). An error is only
// returned for invalid configs.
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	if snap == nil {
		slog.Info("no snapshot found, cold starting indicator engine")
		return NewEngine(r.configs)
	}

	slog.Info("restoring indicator engine from snapshot",
		slog.Int("version", snap.Version), slog.String("stream_id", snap.StreamID), slog.Int("symbols", len(snap.Symbols)))

	engine, err := RestoreEngine(r.configs, snap)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// ReplayBars feeds bars into the engine in order. Returns the number replayed.
func (r *Restorer) ReplayBars(engine *Engine, bars []model.TimedBar, onResults func([]model.IndicatorResult)) int {
	for _, tb := range bars {
		results := engine.Process(tb)
		if onResults != nil && len(results) > 0 {
			onResults(results)
		}
	}
	return len(bars)
}

// Backfill reads stored bars newer than after and feeds them into the engine
// to warm up cold indicators. Only the last maxBars bars of each symbol are
// replayed; maxBars <= 0 means the largest configured period.
func (r *Restorer) Backfill(engine *Engine, reader model.BarReader, after time.Time, maxBars int, onResults func([]model.IndicatorResult)) int {
	if reader == nil {
		return 0
	}
	if maxBars <= 0 {
		maxBars = r.maxPeriod()
	}

	bars, err := reader.ReadAllBars(after)
	if err != nil {
		slog.Warn("backfill read failed", slog.Any("err", err))
		return 0
	}

	// Keep only the most recent maxBars per symbol, preserving global order.
	counts := make(map[string]int)
	for _, tb := range bars {
		counts[tb.Symbol]++
	}
	seen := make(map[string]int)
	selected := make([]model.TimedBar, 0, len(bars))
	for _, tb := range bars {
		seen[tb.Symbol]++
		if counts[tb.Symbol]-seen[tb.Symbol] < maxBars {
			selected = append(selected, tb)
		}
	}

	total := r.ReplayBars(engine, selected, onResults)
	if total > 0 {
		slog.Info("backfilled indicators from stored bars", slog.Int("bars", total), slog.Int("symbols", len(counts)))
	}
	return total
}

func (r *Restorer) maxPeriod() int {
	longest := 1
	for _, c := range r.configs {
		n := c.Period
		if c.Type == TypeROC {
			n++
		}
		if n > longest {
			longest = n
		}
	}
	return longest
}
