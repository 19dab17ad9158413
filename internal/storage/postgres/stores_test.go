package postgres

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

func testCurve() *curve.BondingCurve {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &curve.BondingCurve{
		Mint:                   solana.NewWallet().PublicKey(),
		Authority:              solana.NewWallet().PublicKey(),
		AuthorityBump:          254,
		CustodyHolding:         solana.NewWallet().PublicKey(),
		VirtualTokenReserves:   math.MaxUint64,
		VirtualLamportReserves: 30_000_000_000,
		TokenTotalSupply:       math.MaxUint64,
		Name:                   "Fair",
		Symbol:                 "FAIR",
		URI:                    "https://example.com/fair.json",
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}

func TestToUint64(t *testing.T) {
	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    uint64
		wantErr bool
	}{
		{name: "plain", in: numeric(42), want: 42},
		{name: "max", in: numeric(math.MaxUint64), want: math.MaxUint64},
		{name: "positive exponent", in: pgtype.Numeric{Int: bigInt(5), Exp: 3, Valid: true}, want: 5_000},
		{name: "trailing zeros", in: pgtype.Numeric{Int: bigInt(1200), Exp: -2, Valid: true}, want: 12},
		{name: "fraction", in: pgtype.Numeric{Int: bigInt(1201), Exp: -2, Valid: true}, wantErr: true},
		{name: "null", in: pgtype.Numeric{}, wantErr: true},
		{name: "negative", in: pgtype.Numeric{Int: bigInt(-1), Valid: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toUint64(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigStore_PutGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewConfigStore(pool)
	ctx := context.Background()

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cfg := curve.GlobalConfig{
		FeeRecipient:                  solana.NewWallet().PublicKey(),
		CompletionThreshold:           85_000_000_000,
		TotalTokenSupply:              1_000_000_000_000_000,
		InitialVirtualLamportReserves: 30_000_000_000,
		BuyFeePercent:                 1,
		SellFeePercent:                0.25,
	}

	first, err := store.Put(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)

	cfg.SellFeePercent = 2
	second, err := store.Put(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.FeeRecipient, got.FeeRecipient)
	assert.Equal(t, cfg.TotalTokenSupply, got.TotalTokenSupply)
	assert.Equal(t, 2.0, got.SellFeePercent)
	assert.Equal(t, uint64(2), got.Version)
}

func TestCurveStore_CreateGetList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStore(pool)
	ctx := context.Background()

	c := testCurve()
	require.NoError(t, store.Create(ctx, c))
	assert.ErrorIs(t, store.Create(ctx, c), storage.ErrDuplicateKey)

	got, err := store.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, c.Authority, got.Authority)
	assert.Equal(t, c.AuthorityBump, got.AuthorityBump)
	assert.Equal(t, c.CustodyHolding, got.CustodyHolding)
	assert.Equal(t, uint64(math.MaxUint64), got.VirtualTokenReserves)
	assert.Equal(t, c.Symbol, got.Symbol)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

	_, err = store.Get(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	later := testCurve()
	later.CreatedAt = c.CreatedAt.Add(time.Second)
	require.NoError(t, store.Create(ctx, later))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, c.Mint, all[0].Mint)
	assert.Equal(t, later.Mint, all[1].Mint)
}

func TestCurveStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStore(pool)
	ctx := context.Background()

	c := testCurve()
	c.VirtualTokenReserves = 1_000_000
	require.NoError(t, store.Create(ctx, c))

	boom := errors.New("boom")
	err := store.Update(ctx, c.Mint, func(_ context.Context, bc *curve.BondingCurve) error {
		bc.IsCompleted = true
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted)

	// concurrent increments must not lose updates
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return store.Update(gctx, c.Mint, func(_ context.Context, bc *curve.BondingCurve) error {
				bc.TradeCount++
				bc.VirtualTokenReserves--
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	got, err = store.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.TradeCount)
	assert.Equal(t, uint64(999_980), got.VirtualTokenReserves)

	err = store.Update(ctx, solana.NewWallet().PublicKey(), func(context.Context, *curve.BondingCurve) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_InsertList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()

	for seq := uint64(3); seq >= 1; seq-- {
		tr := &curve.TradeRecord{
			ID:         "trade-" + string(rune('a'+seq)),
			Trader:     solana.NewWallet().PublicKey(),
			Mint:       mint,
			IsBuy:      seq%2 == 1,
			AmountIn:   seq * 1_000,
			AmountOut:  seq * 10,
			Fee:        seq,
			Sequence:   seq,
			ExecutedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Insert(ctx, tr))
	}

	dup := &curve.TradeRecord{ID: "trade-b", Mint: mint, Trader: mint, ExecutedAt: time.Now()}
	assert.ErrorIs(t, store.Insert(ctx, dup), storage.ErrDuplicateKey)
	assert.ErrorIs(t, store.Insert(ctx, &curve.TradeRecord{}), storage.ErrInvalidInput)

	all, err := store.ListByMint(ctx, mint, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Sequence)
	assert.Equal(t, uint64(3_000), all[2].AmountIn)

	limited, err := store.ListByMint(ctx, mint, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
