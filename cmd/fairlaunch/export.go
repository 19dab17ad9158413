// cmd/fairlaunch/export.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/app"
	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/export"
)

// runExport writes the recorded trades of one curve to a file.
func runExport(ctx context.Context, cfg *config.Config, appLogger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	mint := fs.String("mint", "", "Mint of the curve to export")
	format := fs.String("format", string(export.FormatCSV), "csv or json")
	direction := fs.String("direction", "", "buy or sell, empty for both")
	since := fs.Duration("since", 0, "Only trades newer than this")
	out := fs.String("out", "exports", "Output directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mintKey, err := solana.PublicKeyFromBase58(*mint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -mint: %v\n", err)
		return 2
	}

	runner := app.NewRunner(cfg, appLogger)
	defer func() { _ = runner.Shutdown(context.Background()) }()
	if err := runner.OpenStores(ctx); err != nil {
		appLogger.Error("Failed to open stores", zap.Error(err))
		return 1
	}

	opts := export.ExportOptions{
		Format:    export.ExportFormat(*format),
		Mint:      mintKey,
		Direction: *direction,
		OutputDir: *out,
	}
	if *since > 0 {
		opts.StartTime = time.Now().Add(-*since)
	}

	path, err := export.NewTradeExporter(runner.Trades(), appLogger).ExportTrades(ctx, opts)
	if err != nil {
		appLogger.Error("Export failed", zap.Error(err))
		return 1
	}
	fmt.Println(path)
	return 0
}
