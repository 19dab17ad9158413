package postgres

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if the ID exists.
func (s *TradeStore) Insert(ctx context.Context, t *curve.TradeRecord) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (
			id, mint, trader, is_buy, amount_in, amount_out, fee, sequence,
			virtual_token_reserves, virtual_lamport_reserves, actual_lamport_reserves,
			completed_curve, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		t.ID, t.Mint.String(), t.Trader.String(), t.IsBuy,
		numeric(t.AmountIn), numeric(t.AmountOut), numeric(t.Fee), numeric(t.Sequence),
		numeric(t.VirtualTokenReserves), numeric(t.VirtualLamportReserves), numeric(t.ActualLamportReserves),
		t.CompletedCurve, t.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
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
		WHERE mint = $1
		ORDER BY sequence ASC
	`
	args := []any{mint.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var result []*curve.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return result, nil
}

func scanTrade(row pgx.Row) (*curve.TradeRecord, error) {
	var (
		t                                  curve.TradeRecord
		mint, trader                       string
		amountIn, amountOut, fee, sequence pgtype.Numeric
		vToken, vLamport, actual           pgtype.Numeric
	)
	err := row.Scan(
		&t.ID, &mint, &trader, &t.IsBuy,
		&amountIn, &amountOut, &fee, &sequence,
		&vToken, &vLamport, &actual,
		&t.CompletedCurve, &t.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	var d decoder
	t.Mint = d.key(mint)
	t.Trader = d.key(trader)
	t.AmountIn = d.u64(amountIn)
	t.AmountOut = d.u64(amountOut)
	t.Fee = d.u64(fee)
	t.Sequence = d.u64(sequence)
	t.VirtualTokenReserves = d.u64(vToken)
	t.VirtualLamportReserves = d.u64(vLamport)
	t.ActualLamportReserves = d.u64(actual)
	if d.err != nil {
		return nil, d.err
	}
	return &t, nil
}
