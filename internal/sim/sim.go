// internal/sim/sim.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/launchpad"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// Launchpad is the part of the service the simulator drives.
type Launchpad interface {
	Launch(ctx context.Context, caller solana.PublicKey, p launchpad.LaunchParams) (*curve.BondingCurve, error)
	Quote(ctx context.Context, mint solana.PublicKey, amountIn uint64, isBuy bool) (curve.Quote, error)
	Swap(ctx context.Context, req launchpad.SwapRequest) (*curve.TradeRecord, error)
}

// Wallets funds traders and reports their token holdings.
type Wallets interface {
	Airdrop(ctx context.Context, account solana.PublicKey, amount uint64) error
	TokenBalanceOf(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
}

// Config tunes the simulated market.
type Config struct {
	Admin          solana.PublicKey
	Curves         int
	Traders        int
	Interval       time.Duration
	TraderFunding  uint64
	MaxBuyLamports uint64
	// SellRatio is the probability that a trader sells instead of buying.
	SellRatio float64
	// Slippage derives each trade's minimum output from a fresh quote.
	Slippage curve.SlippageConfig
	// Rounds bounds the trades per trader; zero runs until cancelled.
	Rounds int
	Seed   uint64
}

// Stats counts simulator outcomes.
type Stats struct {
	Executed  uint64
	Rejected  uint64
	Completed uint64
}

// Simulator launches a few curves and trades against them from concurrent
// traders.
type Simulator struct {
	cfg     Config
	pad     Launchpad
	wallets Wallets
	logger  *zap.Logger

	executed  atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
}

// New creates a simulator.
func New(cfg Config, pad Launchpad, wallets Wallets, logger *zap.Logger) *Simulator {
	return &Simulator{cfg: cfg, pad: pad, wallets: wallets, logger: logger.Named("simulator")}
}

// Stats returns the counters so far.
func (s *Simulator) Stats() Stats {
	return Stats{
		Executed:  s.executed.Load(),
		Rejected:  s.rejected.Load(),
		Completed: s.completed.Load(),
	}
}

// Run launches the curves, funds the traders and trades until ctx is done
// or every trader finished its rounds. Expected trade rejections are
// counted; anything else stops the run.
func (s *Simulator) Run(ctx context.Context) error {
	mints, err := s.launch(ctx)
	if err != nil {
		return err
	}

	traders := make([]solana.PublicKey, s.cfg.Traders)
	for i := range traders {
		traders[i] = solana.NewWallet().PublicKey()
		if err := s.wallets.Airdrop(ctx, traders[i], s.cfg.TraderFunding); err != nil {
			return fmt.Errorf("fund trader: %w", err)
		}
	}

	s.logger.Info("Simulation started",
		zap.Int("curves", len(mints)),
		zap.Int("traders", len(traders)),
		zap.Duration("interval", s.cfg.Interval))

	g, gctx := errgroup.WithContext(ctx)
	for i, trader := range traders {
		rng := rand.New(rand.NewPCG(s.cfg.Seed, uint64(i)))
		g.Go(func() error {
			return s.trade(gctx, trader, mints, rng)
		})
	}

	err = g.Wait()
	st := s.Stats()
	s.logger.Info("Simulation finished",
		zap.Uint64("executed", st.Executed),
		zap.Uint64("rejected", st.Rejected),
		zap.Uint64("completed_curves", st.Completed))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Simulator) launch(ctx context.Context) ([]solana.PublicKey, error) {
	mints := make([]solana.PublicKey, 0, s.cfg.Curves)
	for i := 0; i < s.cfg.Curves; i++ {
		c, err := s.pad.Launch(ctx, s.cfg.Admin, launchpad.LaunchParams{
			Mint:   solana.NewWallet().PublicKey(),
			Name:   fmt.Sprintf("Sim Token %d", i+1),
			Symbol: fmt.Sprintf("SIM%d", i+1),
			URI:    fmt.Sprintf("https://fairlaunch.local/sim/%d.json", i+1),
		})
		if err != nil {
			return nil, fmt.Errorf("launch simulated curve: %w", err)
		}
		mints = append(mints, c.Mint)
	}
	return mints, nil
}

func (s *Simulator) trade(ctx context.Context, trader solana.PublicKey, mints []solana.PublicKey, rng *rand.Rand) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for round := 0; s.cfg.Rounds == 0 || round < s.cfg.Rounds; round++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		mint := mints[rng.IntN(len(mints))]
		req := launchpad.SwapRequest{Trader: trader, Mint: mint, IsBuy: true}
		held, err := s.wallets.TokenBalanceOf(ctx, trader, mint)
		if err != nil {
			return fmt.Errorf("read holding: %w", err)
		}
		if held > 0 && rng.Float64() < s.cfg.SellRatio {
			req.IsBuy = false
			req.AmountIn = 1 + rng.Uint64N(held)
		} else {
			req.AmountIn = 1 + rng.Uint64N(s.cfg.MaxBuyLamports)
		}

		rec, err := s.swap(ctx, req)
		if err != nil {
			if rejected(err) {
				s.rejected.Add(1)
				continue
			}
			return fmt.Errorf("simulated swap: %w", err)
		}
		s.executed.Add(1)
		if rec.CompletedCurve {
			s.completed.Add(1)
		}
	}
	return nil
}

func (s *Simulator) swap(ctx context.Context, req launchpad.SwapRequest) (*curve.TradeRecord, error) {
	if s.cfg.Slippage.Type != "" && s.cfg.Slippage.Type != curve.SlippageNone {
		q, err := s.pad.Quote(ctx, req.Mint, req.AmountIn, req.IsBuy)
		if err != nil {
			return nil, err
		}
		req.MinAmountOut = s.cfg.Slippage.MinAmountOut(q.AmountOut)
	}
	return s.pad.Swap(ctx, req)
}

// rejected reports the errors a live market produces routinely.
func rejected(err error) bool {
	return errors.Is(err, curve.ErrCurveCompleted) ||
		errors.Is(err, curve.ErrZeroOutput) ||
		errors.Is(err, curve.ErrSlippageExceeded) ||
		errors.Is(err, ledger.ErrInsufficientFunds)
}
