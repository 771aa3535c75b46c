// cmd/barfeed publishes bars to the Redis streams the indicator engine
// consumes ("bars:{symbol}"). It either replays the SQLite archive or, with
// --simulate, generates random-walk bars for testing without a live feed.
//
// Usage:
//
//	go run ./cmd/barfeed --db=data/bars.db --speed=60
//	go run ./cmd/barfeed --simulate --symbols=AAPL,MSFT --interval=1s
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tastream/internal/logger"
	"tastream/internal/marketdata/replay"
	"tastream/internal/model"
	redisstore "tastream/internal/store/redis"
	sqlitestore "tastream/internal/store/sqlite"
)

const publishBatch = 100

func main() {
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	redisPassword := flag.String("redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	dbPath := flag.String("db", envOr("SQLITE_PATH", "data/bars.db"), "SQLite database to replay from (or archive to with --simulate)")
	symbolsStr := flag.String("symbols", "", "Comma-separated symbols (replay: default all; simulate: required)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0=max, 1=realtime)")
	simulate := flag.Bool("simulate", false, "Generate random-walk bars instead of replaying")
	interval := flag.Duration("interval", time.Second, "Simulated bar interval")
	count := flag.Int("count", 0, "Simulated bars per symbol (0=until stopped)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Simulation seed")
	archive := flag.Bool("archive", false, "Also archive simulated bars to --db")
	flag.Parse()

	log := logger.Init("barfeed", slog.LevelInfo)

	client, err := redisstore.Connect(redisstore.Config{Addr: *redisAddr, Password: *redisPassword})
	if err != nil {
		log.Error("redis connect failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer client.Close()
	pub := redisstore.NewPublisher(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	symbols := splitSymbols(*symbolsStr)
	barCh := make(chan model.TimedBar, 1000)

	if *simulate {
		if len(symbols) == 0 {
			log.Error("--simulate needs --symbols")
			os.Exit(2)
		}
		var writer *sqlitestore.Writer
		if *archive {
			if writer, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath}); err != nil {
				log.Error("sqlite open failed", slog.Any("err", err))
				os.Exit(1)
			}
			defer writer.Close()
		}
		go func() {
			defer close(barCh)
			simulateBars(ctx, newWalker(symbols, 100, *seed), *interval, *count, barCh, writer)
		}()
	} else {
		reader, err := sqlitestore.NewReader(*dbPath)
		if err != nil {
			log.Error("sqlite open failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer reader.Close()
		go func() {
			defer close(barCh)
			if _, err := replay.New(reader).Run(ctx, symbols, time.Time{}, *speed, barCh); err != nil {
				log.Warn("replay stopped", slog.Any("err", err))
			}
		}()
	}

	published := publish(ctx, pub, barCh)
	log.Info("barfeed done", slog.Int("published", published))
}

// publish drains barCh into Redis in batches. Returns the number published.
func publish(ctx context.Context, pub *redisstore.Publisher, barCh <-chan model.TimedBar) int {
	batch := make([]model.TimedBar, 0, publishBatch)
	published := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := pub.PublishBars(ctx, batch); err != nil {
			slog.Warn("publish failed", slog.Int("bars", len(batch)), slog.Any("err", err))
		} else {
			published += len(batch)
		}
		batch = batch[:0]
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case tb, ok := <-barCh:
			if !ok {
				flush()
				return published
			}
			batch = append(batch, tb)
			if len(batch) == publishBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// simulateBars emits one bar per symbol every interval until ctx is done or
// count rounds were produced.
func simulateBars(ctx context.Context, w *walker, interval time.Duration, count int, out chan<- model.TimedBar, writer *sqlitestore.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for round := 0; count == 0 || round < count; round++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			bars, err := w.next(now.UTC().Truncate(interval))
			if err != nil {
				slog.Error("simulated bar rejected", slog.Any("err", err))
				return
			}
			if writer != nil {
				if err := writer.WriteBars(bars); err != nil {
					slog.Warn("archive failed", slog.Any("err", err))
				}
			}
			for _, tb := range bars {
				select {
				case out <- tb:
				case <-ctx.Done():
					return
				}
			}
		}
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

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
