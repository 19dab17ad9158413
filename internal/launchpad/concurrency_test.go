package launchpad

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

func TestSwap_ConcurrentTradersConserveBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.configure(t, f.regressionConfig())

	curves := []*curve.BondingCurve{f.launch(t), f.launch(t)}
	traders := make([]solana.PublicKey, 8)
	for i := range traders {
		traders[i] = f.trader(t, 5_000_000_000)
	}
	lamportsBefore, _, err := f.ledger.Totals(solana.PublicKey{})
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		sequences = map[solana.PublicKey][]uint64{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, trader := range traders {
		c := curves[i%len(curves)]
		g.Go(func() error {
			for round := 0; round < 10; round++ {
				req := SwapRequest{Trader: trader, Mint: c.Mint, AmountIn: 100_000_000, IsBuy: true}
				if round%3 == 2 {
					held, err := f.ledger.TokenBalanceOf(gctx, trader, c.Mint)
					if err != nil {
						return err
					}
					req = SwapRequest{Trader: trader, Mint: c.Mint, AmountIn: held / 2, IsBuy: false}
				}
				rec, err := f.svc.Swap(gctx, req)
				if errors.Is(err, curve.ErrZeroAmount) || errors.Is(err, ledger.ErrInsufficientFunds) {
					continue
				}
				if err != nil {
					return err
				}
				mu.Lock()
				sequences[c.Mint] = append(sequences[c.Mint], rec.Sequence)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	lamportsAfter, _, err := f.ledger.Totals(solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, lamportsBefore, lamportsAfter, "lamports are only moved, never created")

	for _, c := range curves {
		got, err := f.svc.Curve(ctx, c.Mint)
		require.NoError(t, err)

		seqs := sequences[c.Mint]
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		require.Len(t, seqs, int(got.TradeCount))
		for i, s := range seqs {
			assert.Equal(t, uint64(i+1), s, "sequence numbers are dense and unique")
		}

		// custody balances track the curve state exactly
		assert.Equal(t, got.ActualLamportReserves, f.lamports(t, got.Authority))
		_, tokens, err := f.ledger.Totals(c.Mint)
		require.NoError(t, err)
		assert.Equal(t, c.TokenTotalSupply, tokens)
		assert.Equal(t, got.VirtualTokenReserves, f.tokens(t, got.CustodyHolding))
	}
}
