// cmd/backtest replays archived bars from SQLite through a cold indicator
// engine and prints a per-indicator summary.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/bars.db --symbols=AAPL,MSFT --indicators=SMA:20,RSI:14d
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"tastream/internal/indicator"
	"tastream/internal/logger"
	"tastream/internal/marketdata/replay"
	"tastream/internal/model"
	sqlitestore "tastream/internal/store/sqlite"
)

// summary accumulates the last value and ready count of one indicator.
type summary struct {
	ready int
	last  model.IndicatorResult
}

func main() {
	dbPath := flag.String("db", "data/bars.db", "Path to SQLite database")
	symbolsStr := flag.String("symbols", "", "Comma-separated symbols to replay (default: all)")
	specs := flag.String("indicators", "", "Indicator specs: TYPE:PERIOD,... (default: built-in set)")
	fromStr := flag.String("from", "", "Only replay bars after this RFC3339 time")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	verbose := flag.Bool("v", false, "Print every ready result")
	flag.Parse()

	log := logger.Init("backtest", slog.LevelInfo)

	var from time.Time
	if *fromStr != "" {
		t, err := time.Parse(time.RFC3339, *fromStr)
		if err != nil {
			log.Error("bad --from", slog.Any("err", err))
			os.Exit(2)
		}
		from = t
	}

	configs, err := indicator.ParseSpecs(*specs)
	if err != nil {
		log.Error("bad --indicators", slog.Any("err", err))
		os.Exit(2)
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Error("sqlite open failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer reader.Close()

	engine, err := indicator.NewRestorer(configs).RestoreFromSnap(nil)
	if err != nil {
		log.Error("engine init failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	barCh := make(chan model.TimedBar, 10000)
	go func() {
		defer close(barCh)
		if _, err := replay.New(reader).Run(ctx, splitSymbols(*symbolsStr), from, *speed, barCh); err != nil {
			log.Warn("replay stopped", slog.Any("err", err))
		}
	}()

	stats := make(map[string]*summary) // key: symbol/name
	processed := 0
	for tb := range barCh {
		processed++
		for _, r := range engine.Process(tb) {
			if !r.Ready {
				continue
			}
			key := r.Symbol + "/" + r.Name
			s := stats[key]
			if s == nil {
				s = &summary{}
				stats[key] = s
			}
			s.ready++
			s.last = r
			if *verbose {
				fmt.Printf("  [%s] %s %s = %.4f\n", r.TS.Format(time.RFC3339), r.Symbol, r.Name, r.Value)
			}
		}
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Printf("Backtest complete: %d bars, %d symbols, %d indicators\n", processed, len(engine.Symbols()), len(configs))
	fmt.Printf("%-10s %-12s %8s %14s  %s\n", "SYMBOL", "INDICATOR", "READY", "LAST", "AT")
	for _, k := range keys {
		s := stats[k]
		fmt.Printf("%-10s %-12s %8d %14.4f  %s\n",
			s.last.Symbol, s.last.Name, s.ready, s.last.Value, s.last.TS.Format(time.RFC3339))
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
