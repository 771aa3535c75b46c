package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tastream/internal/model"
)

var _ model.BarReader = (*Reader)(nil)

// Reader provides read-only access to SQLite for backfill, backtests and
// snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("opened database for reading", slog.String("component", "sqlite"), slog.String("path", dbPath))
	return &Reader{db: db}, nil
}

// ReadBars reads a symbol's bars newer than after, ordered by timestamp
// ascending for correct replay order.
func (r *Reader) ReadBars(symbol string, after time.Time) ([]model.TimedBar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterMillis(after))
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// ReadAllBars reads every symbol's bars newer than after, ordered by
// timestamp then symbol.
func (r *Reader) ReadAllBars(after time.Time) ([]model.TimedBar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE ts > ?
		ORDER BY ts ASC, symbol ASC
	`, afterMillis(after))
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// Symbols lists the symbols with stored bars.
func (r *Reader) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadLatestSnapshotJSON loads the most recent indicator engine snapshot.
// Returns nil, nil when none is stored.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	return latestSnapshot(r.db)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func afterMillis(t time.Time) int64 {
	if t.IsZero() {
		return -1 << 62
	}
	return t.UnixMilli()
}

// scanBars decodes bar rows. Stored rows went through BarBuilder on the way
// in, but they are validated again so a hand-edited database cannot feed the
// engine an invalid bar.
func scanBars(rows *sql.Rows) ([]model.TimedBar, error) {
	var bars []model.TimedBar
	for rows.Next() {
		var m model.BarMessage
		var tsMillis int64
		if err := rows.Scan(&m.Symbol, &tsMillis, &m.Open, &m.High, &m.Low, &m.Close, &m.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		m.TS = time.UnixMilli(tsMillis).UTC()
		tb, err := m.ToTimedBar()
		if err != nil {
			slog.Warn("skipping invalid stored bar", slog.String("component", "sqlite"), slog.Any("err", err))
			continue
		}
		bars = append(bars, tb)
	}
	return bars, rows.Err()
}

func latestSnapshot(db *sql.DB) ([]byte, error) {
	var data string
	err := db.QueryRow(`
		SELECT data FROM indicator_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}
