// cmd/fairlaunch/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/app"
	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to config file (empty for env only)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [export -mint MINT ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync(appLogger) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flag.Arg(0) == "export" {
		os.Exit(runExport(ctx, cfg, appLogger, flag.Args()[1:]))
	}
	os.Exit(run(ctx, cfg, appLogger))
}

func run(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) int {
	appLogger.Info("Starting fairlaunch",
		zap.String("store", cfg.Store.Driver),
		zap.String("trades", cfg.TradeSink()))

	runner := app.NewRunner(cfg, appLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Shutdown completed with errors", zap.Error(err))
		}
	}()

	if err := runner.Initialize(ctx); err != nil {
		appLogger.Error("Failed to initialize", zap.Error(err))
		return 1
	}
	if err := runner.Run(ctx); err != nil {
		appLogger.Error("Launchpad stopped", zap.Error(err))
		return 1
	}
	return 0
}
