package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"charting-engine/config"
	"charting-engine/internal/indengine"
	"charting-engine/internal/logger"
)

func main() {
	cfg := config.Load()

	_, closer := logger.New("indengine", logger.Options{
		Level: logger.ParseLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})
	defer closer.Close()

	svc, err := indengine.New(cfg)
	if err != nil {
		slog.Error("[indengine] init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("[indengine] fatal", "error", err)
		os.Exit(1)
	}
}
