package postgres

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// Ledger keeps lamport balances, token holdings, issuances and metadata in
// PostgreSQL. Writes join the transaction carried by ctx, so a swap settled
// inside CurveStore.Update commits or rolls back together with the curve.
type Ledger struct {
	pool   *Pool
	logger *zap.Logger
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool, logger *zap.Logger) *Ledger {
	return &Ledger{pool: pool, logger: logger.Named("ledger")}
}

var _ ledger.Settler = (*Ledger)(nil)

// OpenHolding returns the holding of owner for mint, creating it if needed.
func (l *Ledger) OpenHolding(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := ledger.HoldingAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	_, err = l.pool.conn(ctx).Exec(ctx, `
		INSERT INTO token_holdings (address, owner, mint)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING
	`, addr.String(), owner.String(), mint.String())
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("open holding: %w", err)
	}
	return addr, nil
}

// Issue mints amount tokens into destination, once per mint.
func (l *Ledger) Issue(ctx context.Context, mint, destination solana.PublicKey, amount uint64) error {
	err := l.pool.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO mint_issuances (mint, destination, supply)
			VALUES ($1, $2, $3)
			ON CONFLICT (mint) DO NOTHING
		`, mint.String(), destination.String(), numeric(amount))
		if err != nil {
			return fmt.Errorf("record issuance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("issue %s: %w", mint, ledger.ErrMintAlreadyIssued)
		}

		var holdingMint string
		err = tx.QueryRow(ctx,
			`SELECT mint FROM token_holdings WHERE address = $1 FOR UPDATE`, destination.String()).Scan(&holdingMint)
		if err != nil {
			if isNotFoundError(err) {
				return fmt.Errorf("issue %s into %s: %w", mint, destination, ledger.ErrUnknownHolding)
			}
			return fmt.Errorf("lock holding: %w", err)
		}
		if holdingMint != mint.String() {
			return fmt.Errorf("issue %s into %s: %w", mint, destination, ledger.ErrMintMismatch)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE token_holdings SET amount = $2 WHERE address = $1`, destination.String(), numeric(amount)); err != nil {
			return fmt.Errorf("credit issued supply: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("Supply issued",
		zap.String("mint", mint.String()),
		zap.String("holding", destination.String()),
		zap.Uint64("amount", amount))
	return nil
}

// Issuance reports whether mint was issued and where.
func (l *Ledger) Issuance(ctx context.Context, mint solana.PublicKey) (ledger.Issuance, bool, error) {
	var (
		destination string
		supply      pgtype.Numeric
	)
	err := l.pool.conn(ctx).QueryRow(ctx,
		`SELECT destination, supply FROM mint_issuances WHERE mint = $1`, mint.String()).Scan(&destination, &supply)
	if err != nil {
		if isNotFoundError(err) {
			return ledger.Issuance{}, false, nil
		}
		return ledger.Issuance{}, false, fmt.Errorf("get issuance: %w", err)
	}

	var d decoder
	iss := ledger.Issuance{Destination: d.key(destination), Supply: d.u64(supply)}
	if d.err != nil {
		return ledger.Issuance{}, false, d.err
	}
	return iss, true, nil
}

// RegisterMetadata attaches display metadata to a mint. Registering the
// same metadata again is a no-op.
func (l *Ledger) RegisterMetadata(ctx context.Context, mint solana.PublicKey, md ledger.Metadata) error {
	q := l.pool.conn(ctx)
	tag, err := q.Exec(ctx, `
		INSERT INTO mint_metadata (mint, name, symbol, uri, update_authority)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mint) DO NOTHING
	`, mint.String(), md.Name, md.Symbol, md.URI, md.UpdateAuthority.String())
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var existing ledger.Metadata
	var authority string
	err = q.QueryRow(ctx,
		`SELECT name, symbol, uri, update_authority FROM mint_metadata WHERE mint = $1`, mint.String()).
		Scan(&existing.Name, &existing.Symbol, &existing.URI, &authority)
	if err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	var d decoder
	existing.UpdateAuthority = d.key(authority)
	if d.err != nil {
		return d.err
	}
	if existing != md {
		return fmt.Errorf("register metadata for %s: %w", mint, ledger.ErrMetadataExists)
	}
	return nil
}

// Airdrop credits lamports out of thin air. Used to fund traders.
func (l *Ledger) Airdrop(ctx context.Context, account solana.PublicKey, amount uint64) error {
	_, err := l.pool.conn(ctx).Exec(ctx, `
		INSERT INTO lamport_balances (account, amount)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET amount = lamport_balances.amount + EXCLUDED.amount
	`, account.String(), numeric(amount))
	if err != nil {
		if hasCode(err, pgErrCheckViolation) {
			return fmt.Errorf("airdrop to %s: %w", account, ledger.ErrBalanceOverflow)
		}
		return fmt.Errorf("airdrop to %s: %w", account, err)
	}
	return nil
}

// LamportBalance returns the lamports held by account.
func (l *Ledger) LamportBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return l.amount(ctx, `SELECT amount FROM lamport_balances WHERE account = $1`, account)
}

// TokenBalance returns the amount in a holding.
func (l *Ledger) TokenBalance(ctx context.Context, holdingAddr solana.PublicKey) (uint64, error) {
	return l.amount(ctx, `SELECT amount FROM token_holdings WHERE address = $1`, holdingAddr)
}

// TokenBalanceOf returns the amount owner holds of mint.
func (l *Ledger) TokenBalanceOf(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	addr, err := ledger.HoldingAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	return l.TokenBalance(ctx, addr)
}

func (l *Ledger) amount(ctx context.Context, query string, key solana.PublicKey) (uint64, error) {
	var n pgtype.Numeric
	if err := l.pool.conn(ctx).QueryRow(ctx, query, key.String()).Scan(&n); err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance of %s: %w", key, err)
	}
	return toUint64(n)
}

// Begin opens a settlement batch.
func (l *Ledger) Begin() *ledger.Batch {
	return ledger.NewBatch(l)
}

// Settle implements ledger.Settler. The touched rows are locked in key
// order, then checked and, when apply is set, rewritten.
func (l *Ledger) Settle(ctx context.Context, transfers []ledger.Transfer, apply bool) error {
	if len(transfers) == 0 {
		return nil
	}

	return l.pool.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		accounts, holdings := ledger.Touched(transfers)
		book, err := lockBook(ctx, tx, accounts, holdings)
		if err != nil {
			return err
		}

		ch, err := ledger.Plan(book, transfers)
		if err != nil {
			l.logger.Debug("Settlement rejected", zap.Bool("apply", apply), zap.Error(err))
			return err
		}
		if !apply {
			return nil
		}

		for k, v := range ch.Lamports {
			if _, err := tx.Exec(ctx,
				`UPDATE lamport_balances SET amount = $2 WHERE account = $1`, k.String(), numeric(v)); err != nil {
				return fmt.Errorf("write lamport balance: %w", err)
			}
		}
		for k, v := range ch.Tokens {
			if _, err := tx.Exec(ctx,
				`UPDATE token_holdings SET amount = $2 WHERE address = $1`, k.String(), numeric(v)); err != nil {
				return fmt.Errorf("write token holding: %w", err)
			}
		}
		return nil
	})
}

// lockedBook is a ledger.Book over rows locked by the current transaction.
type lockedBook struct {
	lamports map[solana.PublicKey]uint64
	holdings map[solana.PublicKey]ledger.Holding
}

func (b *lockedBook) Lamports(account solana.PublicKey) uint64 { return b.lamports[account] }

func (b *lockedBook) Holding(addr solana.PublicKey) (ledger.Holding, bool) {
	h, ok := b.holdings[addr]
	return h, ok
}

func lockBook(ctx context.Context, tx pgx.Tx, accounts, holdings []solana.PublicKey) (*lockedBook, error) {
	b := &lockedBook{
		lamports: make(map[solana.PublicKey]uint64, len(accounts)),
		holdings: make(map[solana.PublicKey]ledger.Holding, len(holdings)),
	}

	if len(accounts) > 0 {
		ids := keyStrings(accounts)
		// every account gets a row so that it can be locked
		if _, err := tx.Exec(ctx, `
			INSERT INTO lamport_balances (account, amount)
			SELECT unnest($1::text[]), 0
			ON CONFLICT (account) DO NOTHING
		`, ids); err != nil {
			return nil, fmt.Errorf("create lamport accounts: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT account, amount FROM lamport_balances
			WHERE account = ANY($1) ORDER BY account FOR UPDATE
		`, ids)
		if err != nil {
			return nil, fmt.Errorf("lock lamport accounts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				account string
				amount  pgtype.Numeric
				d       decoder
			)
			if err := rows.Scan(&account, &amount); err != nil {
				return nil, fmt.Errorf("scan lamport account: %w", err)
			}
			k, v := d.key(account), d.u64(amount)
			if d.err != nil {
				return nil, d.err
			}
			b.lamports[k] = v
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate lamport accounts: %w", err)
		}
		rows.Close()
	}

	if len(holdings) > 0 {
		rows, err := tx.Query(ctx, `
			SELECT address, owner, mint, amount FROM token_holdings
			WHERE address = ANY($1) ORDER BY address FOR UPDATE
		`, keyStrings(holdings))
		if err != nil {
			return nil, fmt.Errorf("lock token holdings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				addr, owner, mint string
				amount            pgtype.Numeric
				d                 decoder
			)
			if err := rows.Scan(&addr, &owner, &mint, &amount); err != nil {
				return nil, fmt.Errorf("scan token holding: %w", err)
			}
			h := ledger.Holding{Owner: d.key(owner), Mint: d.key(mint), Amount: d.u64(amount)}
			k := d.key(addr)
			if d.err != nil {
				return nil, d.err
			}
			b.holdings[k] = h
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate token holdings: %w", err)
		}
	}
	return b, nil
}

func keyStrings(keys []solana.PublicKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
