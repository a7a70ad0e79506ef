// Package main contains the entrypoint for the MemberQA service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgard/memberqa/internal/app"
	"github.com/edgard/memberqa/internal/config"
	"github.com/edgard/memberqa/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, database,
// cache, extractor, serving surfaces), handles graceful shutdown, and returns
// an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("Service stopped with error", "error", err)
		return 1
	}

	return 0
}
