package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse. MergeTree does
// not enforce uniqueness, so Insert checks the ID first.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeStore) Insert(ctx context.Context, t *curve.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			id, mint, trader, is_buy, amount_in, amount_out, fee, sequence,
			virtual_token_reserves, virtual_lamport_reserves, actual_lamport_reserves,
			completed_curve, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		t.ID, t.Mint.String(), t.Trader.String(), t.IsBuy,
		t.AmountIn, t.AmountOut, t.Fee, t.Sequence,
		t.VirtualTokenReserves, t.VirtualLamportReserves, t.ActualLamportReserves,
		t.CompletedCurve, t.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByMint returns trades of a mint ordered by sequence.
func (s *TradeStore) ListByMint(ctx context.Context, mint solana.PublicKey, limit int) ([]*curve.TradeRecord, error) {
	query := `
		SELECT id, mint, trader, is_buy, amount_in, amount_out, fee, sequence,
		       virtual_token_reserves, virtual_lamport_reserves, actual_lamport_reserves,
		       completed_curve, executed_at
		FROM trades
		WHERE mint = ?
		ORDER BY sequence ASC
	`
	args := []any{mint.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *TradeStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM trades WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrades(rows chRows) ([]*curve.TradeRecord, error) {
	var trades []*curve.TradeRecord

	for rows.Next() {
		var (
			t            curve.TradeRecord
			mint, trader string
			executedAt   time.Time
		)
		err := rows.Scan(
			&t.ID, &mint, &trader, &t.IsBuy,
			&t.AmountIn, &t.AmountOut, &t.Fee, &t.Sequence,
			&t.VirtualTokenReserves, &t.VirtualLamportReserves, &t.ActualLamportReserves,
			&t.CompletedCurve, &executedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		if t.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
			return nil, fmt.Errorf("decode mint %q: %w", mint, err)
		}
		if t.Trader, err = solana.PublicKeyFromBase58(trader); err != nil {
			return nil, fmt.Errorf("decode trader %q: %w", trader, err)
		}
		t.ExecutedAt = executedAt
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
