package app

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/feed"
	"github.com/rovshanmuradov/fairlaunch/internal/launchpad"
)

func testConfig() *config.Config {
	return &config.Config{
		Admin:       solana.NewWallet().PublicKey().String(),
		ProgramID:   solana.NewWallet().PublicKey().String(),
		Store:       config.StoreConfig{Driver: config.DriverMemory},
		EventBuffer: 8192,
		Global: config.GlobalConfig{
			FeeRecipient:                  solana.NewWallet().PublicKey().String(),
			CompletionThreshold:           20_000_000_000,
			TotalTokenSupply:              1_000_000_000_000,
			InitialVirtualLamportReserves: 30_000_000_000,
			BuyFeePercent:                 1,
			SellFeePercent:                1,
		},
		Simulation: config.SimulationConfig{
			Curves:         2,
			Traders:        3,
			Interval:       time.Millisecond,
			TraderFunding:  50_000_000_000,
			MaxBuyLamports: 1_000_000_000,
			SellRatio:      0.3,
		},
		Startup: config.StartupConfig{ConnectTimeout: time.Second},
	}
}

func TestRunner_BootstrapsConfigOnce(t *testing.T) {
	cfg := testConfig()
	r := NewRunner(cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, r.Initialize(ctx))
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	got, err := r.Service().Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, cfg.Global.FeeRecipient, got.FeeRecipient.String())

	// unchanged values keep the stored version
	require.NoError(t, r.bootstrapConfig(ctx))
	got, err = r.Service().Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)

	cfg.Global.SellFeePercent = 2
	require.NoError(t, r.bootstrapConfig(ctx))
	got, err = r.Service().Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, 2.0, got.SellFeePercent)
}

func TestRunner_UnconfiguredSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.Global.FeeRecipient = ""
	cfg.Feed.Enabled = true
	cfg.Feed.ListenAddr = config.DefaultFeedAddr

	r := NewRunner(cfg, zaptest.NewLogger(t))
	require.NoError(t, r.Initialize(context.Background()))
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	_, err := r.Service().Config(context.Background())
	assert.ErrorIs(t, err, launchpad.ErrUnconfigured)

	m, err := r.snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feed.TypeSnapshot, m.Type)
	assert.Nil(t, m.Config)
	assert.Empty(t, m.Curves)
}

func TestRunner_SimulationRecordsEveryTrade(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Enabled = true

	r := NewRunner(cfg, zaptest.NewLogger(t))
	require.NoError(t, r.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	// the bus drains on shutdown, so every trade reaches the recorder
	require.NoError(t, r.Shutdown(context.Background()))

	curves, err := r.Service().Curves(context.Background())
	require.NoError(t, err)
	require.Len(t, curves, 2)

	var executed uint64
	for _, c := range curves {
		executed += c.TradeCount
		trades, err := r.trades.ListByMint(context.Background(), c.Mint, 0)
		require.NoError(t, err)
		assert.Len(t, trades, int(c.TradeCount))
		lamports, err := r.ledger.LamportBalance(context.Background(), c.Authority)
		require.NoError(t, err)
		assert.Equal(t, c.ActualLamportReserves, lamports)
	}
	assert.Positive(t, executed)
}
