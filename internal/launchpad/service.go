// internal/launchpad/service.go
package launchpad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// Ledger is the settlement surface the service needs: holdings, one-time
// issuance, metadata and atomic transfer batches.
type Ledger interface {
	OpenHolding(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error)
	Issue(ctx context.Context, mint, destination solana.PublicKey, amount uint64) error
	Issuance(ctx context.Context, mint solana.PublicKey) (ledger.Issuance, bool, error)
	RegisterMetadata(ctx context.Context, mint solana.PublicKey, md ledger.Metadata) error
	Begin() *ledger.Batch
}

// Publisher receives launch and trade events. Publishing is fire-and-forget.
type Publisher interface {
	Publish(event events.Event) error
}

// RejectionObserver is told why a swap was refused.
type RejectionObserver interface {
	Rejected(reason string)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Logger *zap.Logger

	// Admin is the only identity allowed to configure and launch.
	Admin solana.PublicKey
	// ProgramID seeds the derivation of per-curve custody authorities.
	ProgramID solana.PublicKey

	Configs storage.ConfigStore
	Curves  storage.CurveStore
	Ledger  Ledger
	Events  Publisher
	// Rejections is optional.
	Rejections RejectionObserver

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service launches tokens on bonding curves and executes swaps against them.
type Service struct {
	logger    *zap.Logger
	admin     solana.PublicKey
	programID solana.PublicKey
	configs   storage.ConfigStore
	curves    storage.CurveStore
	ledger    Ledger
	rejects   RejectionObserver
	events    Publisher
	now       func() time.Time
}

// NewService creates a launchpad service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg.Admin.IsZero() {
		return nil, errors.New("admin identity is required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, errors.New("program id is required")
	}
	if cfg.Configs == nil || cfg.Curves == nil || cfg.Ledger == nil {
		return nil, errors.New("config store, curve store and ledger are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pub := cfg.Events
	if pub == nil {
		pub = discard{}
	}

	s := &Service{
		logger:    logger.Named("launchpad"),
		admin:     cfg.Admin,
		programID: cfg.ProgramID,
		configs:   cfg.Configs,
		curves:    cfg.Curves,
		ledger:    cfg.Ledger,
		rejects:   cfg.Rejections,
		events:    pub,
		now:       now,
	}

	s.logger.Info("Launchpad service initialized",
		zap.String("admin", s.admin.String()),
		zap.String("program_id", s.programID.String()))
	return s, nil
}

// Configure replaces the global config. Only the administrator may call it.
func (s *Service) Configure(ctx context.Context, caller solana.PublicKey, cfg curve.GlobalConfig) (curve.GlobalConfig, error) {
	if !caller.Equals(s.admin) {
		s.logger.Warn("Rejected configure from non-admin", zap.String("caller", caller.String()))
		return curve.GlobalConfig{}, ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return curve.GlobalConfig{}, err
	}

	stored, err := s.configs.Put(ctx, cfg)
	if err != nil {
		return curve.GlobalConfig{}, fmt.Errorf("store global config: %w", err)
	}

	s.logger.Info("Global config updated",
		zap.Uint64("version", stored.Version),
		zap.String("fee_recipient", stored.FeeRecipient.String()),
		zap.Float64("buy_fee_percent", stored.BuyFeePercent),
		zap.Float64("sell_fee_percent", stored.SellFeePercent),
		zap.Uint64("completion_threshold", stored.CompletionThreshold))

	s.publish(events.NewConfigUpdated(stored, s.now()))
	return stored, nil
}

// Config returns the current global config.
func (s *Service) Config(ctx context.Context) (curve.GlobalConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return curve.GlobalConfig{}, ErrUnconfigured
		}
		return curve.GlobalConfig{}, fmt.Errorf("load global config: %w", err)
	}
	return cfg, nil
}

// Curve returns the curve of mint.
func (s *Service) Curve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	c, err := s.curves.Get(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCurveNotFound
		}
		return nil, fmt.Errorf("load curve %s: %w", mint, err)
	}
	return c, nil
}

// Curves returns all curves in launch order.
func (s *Service) Curves(ctx context.Context) ([]*curve.BondingCurve, error) {
	list, err := s.curves.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list curves: %w", err)
	}
	return list, nil
}

// Quote prices a trade against the current state of a curve without
// executing it.
func (s *Service) Quote(ctx context.Context, mint solana.PublicKey, amountIn uint64, isBuy bool) (curve.Quote, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return curve.Quote{}, err
	}
	c, err := s.Curve(ctx, mint)
	if err != nil {
		return curve.Quote{}, err
	}
	if err := c.CheckTradable(); err != nil {
		return curve.Quote{}, err
	}

	d := curve.DirectionOf(isBuy)
	return curve.Price(c.Reserves(), amountIn, d, cfg.FeePercent(d))
}

func (s *Service) publish(e events.Event) {
	if err := s.events.Publish(e); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", string(e.Type())),
			zap.Error(err))
	}
}

type discard struct{}

func (discard) Publish(events.Event) error { return nil }
