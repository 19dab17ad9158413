package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

func testCurve() *curve.BondingCurve {
	return &curve.BondingCurve{
		Mint:                   solana.NewWallet().PublicKey(),
		VirtualTokenReserves:   1_000,
		VirtualLamportReserves: 30,
		CreatedAt:              time.Now(),
	}
}

func TestCurveStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewCurveStore()
	c := testCurve()

	require.NoError(t, s.Create(ctx, c))
	assert.ErrorIs(t, s.Create(ctx, c), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.Create(ctx, &curve.BondingCurve{}), storage.ErrInvalidInput)

	got, err := s.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, c.VirtualTokenReserves, got.VirtualTokenReserves)

	// snapshots are detached from the stored state
	got.VirtualTokenReserves = 1
	again, err := s.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), again.VirtualTokenReserves)

	_, err = s.Get(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCurveStore_UpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewCurveStore()
	c := testCurve()
	require.NoError(t, s.Create(ctx, c))

	boom := errors.New("boom")
	err := s.Update(ctx, c.Mint, func(_ context.Context, bc *curve.BondingCurve) error {
		bc.VirtualTokenReserves = 0
		bc.IsCompleted = true
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), got.VirtualTokenReserves)
	assert.False(t, got.IsCompleted)

	assert.ErrorIs(t, s.Update(ctx, solana.NewWallet().PublicKey(), func(context.Context, *curve.BondingCurve) error { return nil }), storage.ErrNotFound)
}

func TestCurveStore_UpdatesSerializePerCurve(t *testing.T) {
	ctx := context.Background()
	s := NewCurveStore()
	a, b := testCurve(), testCurve()
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	var g errgroup.Group
	for i := 0; i < 200; i++ {
		mint := a.Mint
		if i%2 == 1 {
			mint = b.Mint
		}
		g.Go(func() error {
			return s.Update(ctx, mint, func(_ context.Context, bc *curve.BondingCurve) error {
				count := bc.TradeCount
				time.Sleep(time.Microsecond)
				bc.TradeCount = count + 1
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	gotA, err := s.Get(ctx, a.Mint)
	require.NoError(t, err)
	gotB, err := s.Get(ctx, b.Mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), gotA.TradeCount)
	assert.Equal(t, uint64(100), gotB.TradeCount)
}

func TestCurveStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewCurveStore()
	first, second := testCurve(), testCurve()
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, s.Create(ctx, second))
	require.NoError(t, s.Create(ctx, first))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Mint, list[0].Mint)
	assert.Equal(t, second.Mint, list[1].Mint)
}

func TestConfigStore_Versions(t *testing.T) {
	ctx := context.Background()
	s := NewConfigStore()

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v1, err := s.Put(ctx, curve.GlobalConfig{BuyFeePercent: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1.Version)

	v2, err := s.Put(ctx, curve.GlobalConfig{BuyFeePercent: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2.Version)

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.BuyFeePercent)
	assert.Equal(t, uint64(2), got.Version)
}

func TestTradeStore_InsertList(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	mint := solana.NewWallet().PublicKey()

	for _, seq := range []uint64{3, 1, 2} {
		require.NoError(t, s.Insert(ctx, &curve.TradeRecord{ID: string(rune('a' + seq)), Mint: mint, Sequence: seq}))
	}
	assert.ErrorIs(t, s.Insert(ctx, &curve.TradeRecord{ID: "b", Mint: mint}), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.Insert(ctx, &curve.TradeRecord{}), storage.ErrInvalidInput)

	all, err := s.ListByMint(ctx, mint, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Sequence, all[1].Sequence, all[2].Sequence})

	limited, err := s.ListByMint(ctx, mint, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
