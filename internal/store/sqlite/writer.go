package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"tastream/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

var (
	_ model.BarWriter     = (*Writer)(nil)
	_ model.SnapshotStore = (*Writer)(nil)
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	// snapshotsKept is how many indicator snapshots survive pruning.
	snapshotsKept = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db  *sql.DB
	log *slog.Logger

	// OnCommit is called after every successful batch insert (optional).
	OnCommit func(bars int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := slog.Default().With(slog.String("component", "sqlite"))
	log.Info("opened database", slog.String("path", cfg.DBPath))
	return &Writer{db: db, log: log}, nil
}

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE INDEX IF NOT EXISTS bars_ts ON bars (ts);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.TimedBar) {
	batch := make([]model.TimedBar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.WriteBars(batch); err != nil {
			w.log.Error("batch insert failed", slog.Int("bars", len(batch)), slog.Any("err", err))
		} else {
			took := time.Since(start)
			w.log.Debug("committed bars", slog.Int("bars", len(batch)), slog.Duration("took", took))
			if w.OnCommit != nil {
				w.OnCommit(len(batch), took)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case tb, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tb)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars inserts bars in a single transaction. A bar with the same symbol
// and timestamp as a stored one replaces it.
func (w *Writer) WriteBars(bars []model.TimedBar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, tb := range bars {
		b := tb.Bar
		_, err := stmt.Exec(tb.Symbol, tb.TS.UnixMilli(), b.Open(), b.High(), b.Low(), b.Close(), b.Volume())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the timestamp of the newest stored bar for a symbol,
// or the zero time if none exist.
func (w *Writer) LastTimestamp(symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(`SELECT MAX(ts) FROM bars WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}

// SaveSnapshotJSON stores an encoded indicator engine snapshot and prunes
// all but the most recent ones.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO indicator_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`DELETE FROM indicator_snapshots WHERE id NOT IN (SELECT id FROM indicator_snapshots ORDER BY id DESC LIMIT ?)`, snapshotsKept)
	if err != nil {
		w.log.Warn("prune snapshots failed", slog.Any("err", err))
	}

	return nil
}

// ReadLatestSnapshotJSON returns the newest stored snapshot, or nil if none exist.
func (w *Writer) ReadLatestSnapshotJSON() ([]byte, error) {
	return latestSnapshot(w.db)
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
