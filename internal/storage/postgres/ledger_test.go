package postgres

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

type ledgerFixture struct {
	l         *Ledger
	mint      solana.PublicKey
	authority solana.PublicKey
	custody   solana.PublicKey
	trader    solana.PublicKey
	holding   solana.PublicKey
}

// newLedgerFixture issues supply into a custody holding and funds a trader
// that holds nothing yet.
func newLedgerFixture(t *testing.T, pool *Pool) ledgerFixture {
	t.Helper()
	ctx := context.Background()

	f := ledgerFixture{
		l:         NewLedger(pool, zaptest.NewLogger(t)),
		mint:      solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
		trader:    solana.NewWallet().PublicKey(),
	}
	var err error
	f.custody, err = f.l.OpenHolding(ctx, f.authority, f.mint)
	require.NoError(t, err)
	f.holding, err = f.l.OpenHolding(ctx, f.trader, f.mint)
	require.NoError(t, err)
	require.NoError(t, f.l.Issue(ctx, f.mint, f.custody, 1_000_000))
	require.NoError(t, f.l.Airdrop(ctx, f.trader, 5_000))
	return f
}

// buy stages a 1,000 lamport for 400 token exchange.
func (f ledgerFixture) buy(ctx context.Context) *ledger.Batch {
	b := f.l.Begin()
	_ = b.TransferLamports(ctx, f.trader, f.authority, 1_000)
	_ = b.TransferTokens(ctx, f.authority, f.custody, f.holding, 400)
	return b
}

func (f ledgerFixture) balances(t *testing.T, l *Ledger) (lamports, tokens uint64) {
	t.Helper()
	ctx := context.Background()
	lamports, err := l.LamportBalance(ctx, f.trader)
	require.NoError(t, err)
	tokens, err = l.TokenBalance(ctx, f.holding)
	require.NoError(t, err)
	return lamports, tokens
}

func TestLedger_SurvivesRestart(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	f := newLedgerFixture(t, pool)
	md := ledger.Metadata{Name: "Fair", Symbol: "FAIR", URI: "https://example.com/fair.json", UpdateAuthority: f.authority}
	require.NoError(t, f.l.RegisterMetadata(ctx, f.mint, md))
	require.NoError(t, f.buy(ctx).Commit(ctx))

	restarted := NewLedger(pool, zaptest.NewLogger(t))

	lamports, tokens := f.balances(t, restarted)
	assert.Equal(t, uint64(4_000), lamports)
	assert.Equal(t, uint64(400), tokens)
	custody, err := restarted.TokenBalance(ctx, f.custody)
	require.NoError(t, err)
	assert.Equal(t, uint64(999_600), custody)
	held, err := restarted.TokenBalanceOf(ctx, f.trader, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), held)

	iss, ok, err := restarted.Issuance(ctx, f.mint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.Issuance{Destination: f.custody, Supply: 1_000_000}, iss)
	assert.ErrorIs(t, restarted.Issue(ctx, f.mint, f.custody, 1), ledger.ErrMintAlreadyIssued)

	assert.NoError(t, restarted.RegisterMetadata(ctx, f.mint, md))
	md.Name = "Unfair"
	assert.ErrorIs(t, restarted.RegisterMetadata(ctx, f.mint, md), ledger.ErrMetadataExists)

	// the trader can keep trading against the restored balances
	f.l = restarted
	require.NoError(t, f.buy(ctx).Commit(ctx))
	lamports, tokens = f.balances(t, restarted)
	assert.Equal(t, uint64(3_000), lamports)
	assert.Equal(t, uint64(800), tokens)
}

func TestLedger_SettlesInCurveTransaction(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCurveStore(pool)
	f := newLedgerFixture(t, pool)

	c := testCurve()
	c.Mint = f.mint
	require.NoError(t, store.Create(ctx, c))

	boom := errors.New("boom")
	err := store.Update(ctx, f.mint, func(ctx context.Context, bc *curve.BondingCurve) error {
		if err := f.buy(ctx).Commit(ctx); err != nil {
			return err
		}
		bc.TradeCount++
		return boom
	})
	assert.ErrorIs(t, err, boom)

	lamports, tokens := f.balances(t, f.l)
	assert.Equal(t, uint64(5_000), lamports, "settlement must roll back with the curve")
	assert.Equal(t, uint64(0), tokens)

	err = store.Update(ctx, f.mint, func(ctx context.Context, bc *curve.BondingCurve) error {
		if err := f.buy(ctx).Commit(ctx); err != nil {
			return err
		}
		bc.TradeCount++
		return nil
	})
	require.NoError(t, err)

	lamports, tokens = f.balances(t, f.l)
	assert.Equal(t, uint64(4_000), lamports)
	assert.Equal(t, uint64(400), tokens)
	got, err := store.Get(ctx, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.TradeCount)
}

func TestLedger_ValidateRejectsWithoutWriting(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	f := newLedgerFixture(t, pool)

	oversell := f.l.Begin()
	require.NoError(t, oversell.TransferTokens(ctx, f.trader, f.holding, f.custody, 1))
	assert.ErrorIs(t, oversell.Validate(ctx), ledger.ErrInsufficientFunds)
	oversell.Rollback()

	stranger := solana.NewWallet().PublicKey()
	missing := f.l.Begin()
	require.NoError(t, missing.TransferTokens(ctx, stranger, stranger, f.holding, 1))
	assert.ErrorIs(t, missing.Validate(ctx), ledger.ErrUnknownHolding)
	missing.Rollback()

	b := f.buy(ctx)
	require.NoError(t, b.Validate(ctx))
	lamports, tokens := f.balances(t, f.l)
	assert.Equal(t, uint64(5_000), lamports)
	assert.Equal(t, uint64(0), tokens)

	require.NoError(t, b.Commit(ctx))
	lamports, tokens = f.balances(t, f.l)
	assert.Equal(t, uint64(4_000), lamports)
	assert.Equal(t, uint64(400), tokens)
}

func TestLedger_AirdropOverflow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, zaptest.NewLogger(t))
	acct := solana.NewWallet().PublicKey()

	require.NoError(t, l.Airdrop(ctx, acct, math.MaxUint64))
	assert.ErrorIs(t, l.Airdrop(ctx, acct, 1), ledger.ErrBalanceOverflow)

	got, err := l.LamportBalance(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}
