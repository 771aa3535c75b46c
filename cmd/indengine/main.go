package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tastream/config"
	"tastream/internal/indengine"
	"tastream/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a YAML config file (default: ./tastream.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("bad log level, using info", slog.Any("err", err))
	}
	log := logger.Init("indengine", level)
	log.Info("config loaded",
		slog.String("redis", cfg.RedisAddr),
		slog.String("sqlite", cfg.SQLitePath),
		slog.String("indicators", cfg.IndicatorSpecs),
		slog.Duration("snapshot_interval", cfg.SnapshotInterval))

	svc, err := indengine.New(cfg)
	if err != nil {
		log.Error("init failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}
