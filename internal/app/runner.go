// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/feed"
	"github.com/rovshanmuradov/fairlaunch/internal/launchpad"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/license"
	"github.com/rovshanmuradov/fairlaunch/internal/metrics"
	"github.com/rovshanmuradov/fairlaunch/internal/retry"
	"github.com/rovshanmuradov/fairlaunch/internal/sim"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
	"github.com/rovshanmuradov/fairlaunch/internal/storage/clickhouse"
	"github.com/rovshanmuradov/fairlaunch/internal/storage/memory"
	"github.com/rovshanmuradov/fairlaunch/internal/storage/postgres"
)

const licenseHeartbeat = time.Hour

// Ledger is the account book behind the service and the simulator.
type Ledger interface {
	launchpad.Ledger
	sim.Wallets
	LamportBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

var (
	_ Ledger = (*ledger.Ledger)(nil)
	_ Ledger = (*postgres.Ledger)(nil)
)

// Runner assembles the launchpad daemon from its configuration.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	admin   solana.PublicKey
	closers *Closers
	gate    *license.Gate

	configs storage.ConfigStore
	curves  storage.CurveStore
	trades  storage.TradeStore
	ledger  Ledger
	bus     *events.Bus
	service *launchpad.Service
	feed    *feed.Server
	metrics *metrics.Metrics
}

// NewRunner creates a runner; Initialize must be called before Run.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		closers: NewClosers(logger.Named("shutdown")),
	}
}

// Service returns the launchpad service once initialized.
func (r *Runner) Service() *launchpad.Service { return r.service }

// Trades returns the trade sink once the stores are open.
func (r *Runner) Trades() storage.TradeStore { return r.trades }

// Initialize validates the license, connects the stores and builds the
// service. Resources acquired so far are released by Shutdown even when
// Initialize fails.
func (r *Runner) Initialize(ctx context.Context) error {
	var err error
	if r.admin, err = r.cfg.AdminKey(); err != nil {
		return err
	}
	programID, err := r.cfg.ProgramKey()
	if err != nil {
		return err
	}

	if r.cfg.License.Key != "" {
		r.gate = license.NewGate(license.Config{
			Key:          r.cfg.License.Key,
			AccountID:    r.cfg.License.AccountID,
			ProductID:    r.cfg.License.ProductID,
			ProductToken: r.cfg.License.ProductToken,
		}, r.logger)
		if err := r.gate.Validate(ctx); err != nil {
			return fmt.Errorf("license validation failed: %w", err)
		}
	}

	if err := r.OpenStores(ctx); err != nil {
		return err
	}

	r.bus = events.NewBus(r.logger, r.cfg.EventBuffer)
	r.closers.Add("event_bus", r.bus.Shutdown)
	events.NewTradeRecorder(r.trades, r.logger).Attach(r.bus)

	r.metrics = metrics.New()
	r.metrics.Attach(r.bus)
	r.metrics.WatchBus(r.bus)

	r.service, err = launchpad.NewService(&launchpad.ServiceConfig{
		Logger:     r.logger,
		Admin:      r.admin,
		ProgramID:  programID,
		Configs:    r.configs,
		Curves:     r.curves,
		Ledger:     r.ledger,
		Events:     r.bus,
		Rejections: r.metrics,
	})
	if err != nil {
		return err
	}

	if r.cfg.Global.FeeRecipient != "" {
		if err := r.bootstrapConfig(ctx); err != nil {
			return err
		}
	}

	if r.cfg.Feed.Enabled {
		r.feed = feed.NewServer(r.logger, r.snapshot)
		r.feed.Attach(r.bus)
		if r.cfg.Feed.MetricsPath != "" {
			r.feed.Mount(r.cfg.Feed.MetricsPath, r.metrics.Handler())
		}
	}
	return nil
}

// OpenStores connects the configured stores and the ledger without
// building the service. The ledger lives in the same store as the curves.
func (r *Runner) OpenStores(ctx context.Context) error {
	timeout := r.cfg.Startup.ConnectTimeout

	var pool *postgres.Pool
	switch r.cfg.Store.Driver {
	case config.DriverPostgres:
		var err error
		pool, err = retry.Connect(ctx, r.logger, "postgres", timeout, func(ctx context.Context) (*postgres.Pool, error) {
			return postgres.NewPool(ctx, r.cfg.Store.PostgresURL)
		})
		if err != nil {
			return err
		}
		r.closers.Add("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		r.configs = postgres.NewConfigStore(pool)
		r.curves = postgres.NewCurveStore(pool)
		r.ledger = postgres.NewLedger(pool, r.logger)
	default:
		r.configs = memory.NewConfigStore()
		r.curves = memory.NewCurveStore()
		r.ledger = ledger.New(r.logger)
	}

	switch r.cfg.TradeSink() {
	case config.DriverPostgres:
		r.trades = postgres.NewTradeStore(pool)
	case config.DriverClickHouse:
		conn, err := retry.Connect(ctx, r.logger, "clickhouse", timeout, func(ctx context.Context) (*clickhouse.Conn, error) {
			return clickhouse.NewConn(ctx, r.cfg.Trades.ClickHouseURL)
		})
		if err != nil {
			return err
		}
		r.closers.Add("clickhouse", func(context.Context) error { return conn.Close() })
		if err := conn.EnsureSchema(ctx); err != nil {
			return err
		}
		r.trades = clickhouse.NewTradeStore(conn)
	default:
		r.trades = memory.NewTradeStore()
	}

	r.logger.Info("Stores ready",
		zap.String("store", r.cfg.Store.Driver),
		zap.String("trades", r.cfg.TradeSink()))
	return nil
}

// bootstrapConfig applies the configured global config unless the store
// already holds the same values.
func (r *Runner) bootstrapConfig(ctx context.Context) error {
	want, err := r.cfg.Global.ToCurve()
	if err != nil {
		return err
	}

	current, err := r.service.Config(ctx)
	switch {
	case err == nil && sameConfig(current, want):
		r.logger.Info("Global config up to date", zap.Uint64("version", current.Version))
		return nil
	case err != nil && !errors.Is(err, launchpad.ErrUnconfigured):
		return err
	}

	_, err = r.service.Configure(ctx, r.admin, want)
	return err
}

func sameConfig(a, b curve.GlobalConfig) bool {
	return a.FeeRecipient.Equals(b.FeeRecipient) &&
		a.CompletionThreshold == b.CompletionThreshold &&
		a.TotalTokenSupply == b.TotalTokenSupply &&
		a.InitialVirtualLamportReserves == b.InitialVirtualLamportReserves &&
		a.BuyFeePercent == b.BuyFeePercent &&
		a.SellFeePercent == b.SellFeePercent
}

func (r *Runner) snapshot(ctx context.Context) (feed.Message, error) {
	curves, err := r.service.Curves(ctx)
	if err != nil {
		return feed.Message{}, err
	}
	m := feed.Message{Type: feed.TypeSnapshot, At: time.Now().UTC(), Curves: curves}
	if cfg, err := r.service.Config(ctx); err == nil {
		m.Config = &cfg
	} else if !errors.Is(err, launchpad.ErrUnconfigured) {
		return feed.Message{}, err
	}
	return m, nil
}

// Run serves until ctx is done or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if r.feed != nil {
		path := r.cfg.Feed.Path
		if path == "" {
			path = config.DefaultFeedPath
		}
		g.Go(func() error {
			return r.feed.ListenAndServe(gctx, r.cfg.Feed.ListenAddr, path)
		})
	}

	if r.gate != nil {
		g.Go(func() error {
			r.gate.Heartbeat(gctx, licenseHeartbeat)
			return nil
		})
	}

	if r.cfg.Simulation.Enabled {
		s := sim.New(sim.Config{
			Admin:          r.admin,
			Curves:         r.cfg.Simulation.Curves,
			Traders:        r.cfg.Simulation.Traders,
			Interval:       r.cfg.Simulation.Interval,
			TraderFunding:  r.cfg.Simulation.TraderFunding,
			MaxBuyLamports: r.cfg.Simulation.MaxBuyLamports,
			SellRatio:      r.cfg.Simulation.SellRatio,
			Slippage:       r.cfg.Simulation.Slippage,
			Seed:           uint64(time.Now().UnixNano()),
		}, r.service, r.ledger, r.logger)
		g.Go(func() error {
			return s.Run(gctx)
		})
	}

	r.logger.Info("Launchpad running",
		zap.Bool("feed", r.feed != nil),
		zap.Bool("simulation", r.cfg.Simulation.Enabled))

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// Shutdown drains the event bus and closes the stores.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("Launchpad shutting down")
	return r.closers.Shutdown(ctx)
}
