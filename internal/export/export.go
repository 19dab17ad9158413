package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ErrNoTrades is returned when no trade matches the export filters.
var ErrNoTrades = errors.New("no trades match the export criteria")

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format    ExportFormat
	Mint      solana.PublicKey
	StartTime time.Time
	EndTime   time.Time
	// Direction keeps only "buy" or "sell" trades when set.
	Direction string
	OutputDir string
}

// TradeExporter writes the trade history of a curve to files.
type TradeExporter struct {
	store  storage.TradeStore
	logger *zap.Logger
	now    func() time.Time
}

// NewTradeExporter creates a new trade exporter
func NewTradeExporter(store storage.TradeStore, logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		store:  store,
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportTrades loads the trades of options.Mint, filters them and writes
// them to a new file in options.OutputDir. It returns the file path.
func (te *TradeExporter) ExportTrades(ctx context.Context, options ExportOptions) (string, error) {
	switch options.Format {
	case FormatCSV, FormatJSON:
	default:
		return "", fmt.Errorf("unsupported format: %s", options.Format)
	}

	trades, err := te.store.ListByMint(ctx, options.Mint, 0)
	if err != nil {
		return "", fmt.Errorf("load trades: %w", err)
	}

	filtered := filterTrades(trades, options)
	if len(filtered) == 0 {
		return "", ErrNoTrades
	}

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if options.Format == FormatCSV {
		err = WriteCSV(file, filtered)
	} else {
		err = WriteJSON(file, filtered, te.now())
	}
	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.String("mint", options.Mint.String()),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterTrades(trades []*curve.TradeRecord, options ExportOptions) []*curve.TradeRecord {
	var filtered []*curve.TradeRecord
	for _, t := range trades {
		if !options.StartTime.IsZero() && t.ExecutedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && t.ExecutedAt.After(options.EndTime) {
			continue
		}
		if options.Direction != "" && curve.DirectionOf(t.IsBuy).String() != options.Direction {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	prefix := "trades_all"
	if options.Direction != "" {
		prefix = "trades_" + options.Direction
	}
	mint := options.Mint.String()
	return fmt.Sprintf("%s_%s_%s.%s", prefix, mint[:8], te.now().UTC().Format("20060102_150405"), options.Format)
}

// CSVHeaders are the columns written by WriteCSV.
func CSVHeaders() []string {
	return []string{
		"id", "sequence", "executed_at", "mint", "trader", "direction",
		"amount_in", "amount_out", "fee",
		"virtual_token_reserves", "virtual_lamport_reserves", "actual_lamport_reserves",
		"completed_curve",
	}
}

func csvRow(t *curve.TradeRecord) []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		t.ID, u(t.Sequence), t.ExecutedAt.UTC().Format(time.RFC3339Nano),
		t.Mint.String(), t.Trader.String(), curve.DirectionOf(t.IsBuy).String(),
		u(t.AmountIn), u(t.AmountOut), u(t.Fee),
		u(t.VirtualTokenReserves), u(t.VirtualLamportReserves), u(t.ActualLamportReserves),
		strconv.FormatBool(t.CompletedCurve),
	}
}

// WriteCSV writes trades with a header row.
func WriteCSV(w io.Writer, trades []*curve.TradeRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, t := range trades {
		if err := writer.Write(csvRow(t)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportSummary contains summary statistics for exported trades
type ExportSummary struct {
	TotalTrades int `json:"total_trades"`
	BuyCount    int `json:"buy_count"`
	SellCount   int `json:"sell_count"`
	// Volumes are in SOL.
	SolIn    string `json:"sol_in"`
	SolOut   string `json:"sol_out"`
	BuyFees  uint64 `json:"buy_fees_lamports"`
	SellFees uint64 `json:"sell_fees_tokens"`

	FirstSequence uint64    `json:"first_sequence"`
	LastSequence  uint64    `json:"last_sequence"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Completed     bool      `json:"completed"`
}

func calculateSummary(trades []*curve.TradeRecord) ExportSummary {
	summary := ExportSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	first, last := trades[0], trades[len(trades)-1]
	summary.FirstSequence, summary.LastSequence = first.Sequence, last.Sequence
	summary.StartDate, summary.EndDate = first.ExecutedAt, last.ExecutedAt

	in, out := decimal.Zero, decimal.Zero
	for _, t := range trades {
		if t.IsBuy {
			summary.BuyCount++
			summary.BuyFees += t.Fee
			in = in.Add(decimal.NewFromUint64(t.AmountIn))
		} else {
			summary.SellCount++
			summary.SellFees += t.Fee
			out = out.Add(decimal.NewFromUint64(t.AmountOut))
		}
		summary.Completed = summary.Completed || t.CompletedCurve
	}
	summary.SolIn = in.Shift(-9).String()
	summary.SolOut = out.Shift(-9).String()
	return summary
}

// WriteJSON writes trades with a summary.
func WriteJSON(w io.Writer, trades []*curve.TradeRecord, exportTime time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time            `json:"export_time"`
		TradeCount int                  `json:"trade_count"`
		Summary    ExportSummary        `json:"summary"`
		Trades     []*curve.TradeRecord `json:"trades"`
	}{
		ExportTime: exportTime.UTC(),
		TradeCount: len(trades),
		Summary:    calculateSummary(trades),
		Trades:     trades,
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
