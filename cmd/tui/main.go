// cmd/tui/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/feed"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
	"github.com/rovshanmuradov/fairlaunch/internal/retry"
	"github.com/rovshanmuradov/fairlaunch/internal/ui"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to config file (empty for env only)")
	feedURL := flag.String("feed", "", "Feed URL, defaults to the configured listen address")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The terminal belongs to the dashboard; logs go to the file and the
	// in-app log pane.
	logs := logger.NewBuffer(256)
	cfg.Log.Console = false
	appLogger, err := logger.New(cfg.Log, logs.Core(cfg.Log.Level()))
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync(appLogger) }()

	url := *feedURL
	if url == "" {
		url = fmt.Sprintf("ws://%s%s", cfg.Feed.ListenAddr, cfg.Feed.Path)
	}

	client, err := retry.Connect(rootCtx, appLogger, "feed", cfg.Startup.ConnectTimeout, func(ctx context.Context) (*feed.Client, error) {
		return feed.Dial(ctx, url, appLogger)
	})
	if err != nil {
		log.Fatalf("Failed to connect to feed %s: %v", url, err)
	}
	defer client.Close()

	program := tea.NewProgram(ui.New(client, logs), tea.WithAltScreen(), tea.WithContext(rootCtx))
	if _, err := program.Run(); err != nil && rootCtx.Err() == nil {
		appLogger.Error("TUI application failed", zap.Error(err))
	}
}
