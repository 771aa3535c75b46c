package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine from concrete storage implementations
// (Redis, SQLite).

// BarReader reads stored bars for backfill and replay, ordered by timestamp.
type BarReader interface {
	ReadBars(symbol string, after time.Time) ([]TimedBar, error)
	ReadAllBars(after time.Time) ([]TimedBar, error)
	Close() error
}

// BarWriter persists bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them in batches.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan TimedBar)
	Close() error
}

// ResultWriter publishes indicator results.
type ResultWriter interface {
	WriteResultBatch(ctx context.Context, results []IndicatorResult) error
}

// SnapshotStore reads and writes indicator engine snapshots as raw JSON.
// Using []byte avoids a model→indicator→model import cycle.
type SnapshotStore interface {
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// BarConsumer consumes bars from a stream (e.g. Redis Streams).
type BarConsumer interface {
	// ConsumeBars reads bars via consumer groups. Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- TimedBar) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- TimedBar) error

	EnsureConsumerGroup(ctx context.Context, streams []string) error
	Close() error
}
