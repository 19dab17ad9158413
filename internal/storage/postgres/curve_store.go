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

// CurveStore implements storage.CurveStore using PostgreSQL. Update holds a
// row lock for the duration of the callback, so swaps on one curve
// serialize across processes.
type CurveStore struct {
	pool *Pool
}

// NewCurveStore creates a new CurveStore.
func NewCurveStore(pool *Pool) *CurveStore {
	return &CurveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveStore = (*CurveStore)(nil)

const curveColumns = `
	mint, authority, authority_bump, custody_holding,
	virtual_token_reserves, virtual_lamport_reserves, actual_lamport_reserves,
	token_total_supply, is_completed, trade_count,
	name, symbol, uri, created_at, updated_at
`

// Create stores a new curve. Returns ErrDuplicateKey if the mint exists.
func (s *CurveStore) Create(ctx context.Context, c *curve.BondingCurve) error {
	if c == nil || c.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bonding_curves (`+curveColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		c.Mint.String(), c.Authority.String(), int16(c.AuthorityBump), c.CustodyHolding.String(),
		numeric(c.VirtualTokenReserves), numeric(c.VirtualLamportReserves), numeric(c.ActualLamportReserves),
		numeric(c.TokenTotalSupply), c.IsCompleted, numeric(c.TradeCount),
		c.Name, c.Symbol, c.URI, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bonding curve: %w", err)
	}
	return nil
}

// Get retrieves a curve by mint. Returns ErrNotFound if not exists.
func (s *CurveStore) Get(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	c, err := scanCurve(s.pool.QueryRow(ctx,
		`SELECT `+curveColumns+` FROM bonding_curves WHERE mint = $1`, mint.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bonding curve: %w", err)
	}
	return c, nil
}

// List returns all curves ordered by creation time.
func (s *CurveStore) List(ctx context.Context) ([]*curve.BondingCurve, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+curveColumns+` FROM bonding_curves ORDER BY created_at ASC, mint ASC`)
	if err != nil {
		return nil, fmt.Errorf("query bonding curves: %w", err)
	}
	defer rows.Close()

	var result []*curve.BondingCurve
	for rows.Next() {
		c, err := scanCurve(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bonding curve: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bonding curves: %w", err)
	}
	return result, nil
}

// Update locks the curve row, runs fn and writes the result in the same
// transaction. fn receives that transaction through its ctx, so a Ledger on
// the same pool settles in it and commits or rolls back with the curve.
func (s *CurveStore) Update(ctx context.Context, mint solana.PublicKey, fn storage.UpdateFunc) error {
	return s.pool.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		c, err := scanCurve(tx.QueryRow(ctx,
			`SELECT `+curveColumns+` FROM bonding_curves WHERE mint = $1 FOR UPDATE`, mint.String()))
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("lock bonding curve: %w", err)
		}

		if err := fn(ctx, c); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE bonding_curves SET
				virtual_token_reserves = $2,
				virtual_lamport_reserves = $3,
				actual_lamport_reserves = $4,
				is_completed = $5,
				trade_count = $6,
				updated_at = $7
			WHERE mint = $1
		`,
			mint.String(),
			numeric(c.VirtualTokenReserves), numeric(c.VirtualLamportReserves), numeric(c.ActualLamportReserves),
			c.IsCompleted, numeric(c.TradeCount), c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update bonding curve: %w", err)
		}
		return nil
	})
}

func scanCurve(row pgx.Row) (*curve.BondingCurve, error) {
	var (
		c                                curve.BondingCurve
		mint, authority, custody         string
		bump                             int16
		vToken, vLamport, actual, supply pgtype.Numeric
		trades                           pgtype.Numeric
	)
	err := row.Scan(
		&mint, &authority, &bump, &custody,
		&vToken, &vLamport, &actual,
		&supply, &c.IsCompleted, &trades,
		&c.Name, &c.Symbol, &c.URI, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var d decoder
	c.Mint = d.key(mint)
	c.Authority = d.key(authority)
	c.CustodyHolding = d.key(custody)
	c.AuthorityBump = uint8(bump)
	c.VirtualTokenReserves = d.u64(vToken)
	c.VirtualLamportReserves = d.u64(vLamport)
	c.ActualLamportReserves = d.u64(actual)
	c.TokenTotalSupply = d.u64(supply)
	c.TradeCount = d.u64(trades)
	if d.err != nil {
		return nil, d.err
	}
	return &c, nil
}
