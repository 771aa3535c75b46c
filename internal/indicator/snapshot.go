package indicator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const snapshotVersion = 2

// IndicatorSnapshot is the state of one indicator keyed by its config key.
type IndicatorSnapshot struct {
	Key   string `json:"key"`
	State State  `json:"state"`
}

// SymbolSnapshot holds indicator snapshots for a single symbol.
type SymbolSnapshot struct {
	Symbol     string              `json:"symbol"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	StreamID string           `json:"stream_id"` // Redis Stream ID at checkpoint time
	Symbols  []SymbolSnapshot `json:"symbols"`
	Version  int              `json:"version"` // schema version for forward compat

	// Watermarks holds the timestamp of the last bar applied per symbol.
	// The engine does not read it; the service uses it to drop redeliveries.
	Watermarks map[string]time.Time `json:"watermarks,omitempty"`
}

// Marshal encodes the snapshot as JSON.
func (es *EngineSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(es)
}

// UnmarshalSnapshot decodes a JSON snapshot. A nil or empty input yields a
// nil snapshot and no error.
func UnmarshalSnapshot(data []byte) (*EngineSnapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d not supported (want %d)", snap.Version, snapshotVersion)
	}
	return &snap, nil
}

// SnapshotEngine captures the full state of an indicator Engine.
func SnapshotEngine(e *Engine, streamID string) *EngineSnapshot {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  snapshotVersion,
		Symbols:  make([]SymbolSnapshot, 0, len(e.state)),
	}
	for _, symbol := range e.Symbols() {
		si := e.state[symbol]
		ss := SymbolSnapshot{
			Symbol:     symbol,
			Indicators: make([]IndicatorSnapshot, 0, len(si.bindings)),
		}
		for _, b := range si.bindings {
			ss.Indicators = append(ss.Indicators, IndicatorSnapshot{Key: b.key, State: b.ind.Snapshot()})
		}
		snap.Symbols = append(snap.Symbols, ss)
	}
	return snap
}

// RestoreEngine rebuilds an indicator Engine from a snapshot.
// It is tolerant of config changes: indicators are matched by key rather
// than by index. Matching indicators get their state restored; new or
// unrestorable ones start fresh (cold). Removed indicators are skipped.
func RestoreEngine(configs []Config, snap *EngineSnapshot) (*Engine, error) {
	e, err := NewEngine(configs)
	if err != nil {
		return nil, err
	}

	for _, ss := range snap.Symbols {
		si := newSymbolIndicators(e.configs)

		byKey := make(map[string]State, len(ss.Indicators))
		for _, is := range ss.Indicators {
			byKey[is.Key] = is.State
		}

		restored, cold := 0, 0
		for _, b := range si.bindings {
			st, found := byKey[b.key]
			if !found {
				cold++
				continue
			}
			if err := b.ind.Restore(st); err != nil {
				slog.Warn("indicator restore failed, cold-starting",
					slog.String("symbol", ss.Symbol), slog.String("indicator", b.key), slog.Any("err", err))
				b.ind.Reset()
				cold++
				continue
			}
			restored++
		}
		if cold > 0 {
			slog.Info("symbol partially restored",
				slog.String("symbol", ss.Symbol), slog.Int("restored", restored), slog.Int("cold", cold))
		}
		e.state[ss.Symbol] = si
	}
	return e, nil
}
