// internal/launchpad/swap.go
package launchpad

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// SwapRequest describes one trade against a curve.
type SwapRequest struct {
	Trader   solana.PublicKey
	Mint     solana.PublicKey
	AmountIn uint64
	IsBuy    bool
	// MinAmountOut guards against slippage; zero disables the guard.
	MinAmountOut uint64
	// FeeRecipient, when set, must match the configured recipient.
	FeeRecipient solana.PublicKey
}

// settlement carries the accounts of one swap.
type settlement struct {
	trader        solana.PublicKey
	traderHolding solana.PublicKey
	feeRecipient  solana.PublicKey
	// feeHolding is the fee recipient's token holding, used by sells.
	feeHolding solana.PublicKey
}

// Swap executes a trade. Pricing, settlement and the reserve update happen
// while the curve is held exclusively; any failure leaves both the curve
// and all balances untouched.
func (s *Service) Swap(ctx context.Context, req SwapRequest) (*curve.TradeRecord, error) {
	if req.Trader.IsZero() {
		return nil, ErrInvalidTrader
	}

	d := curve.DirectionOf(req.IsBuy)
	log := s.logger.With(
		zap.String("mint", req.Mint.String()),
		zap.String("trader", req.Trader.String()),
		zap.Stringer("direction", d),
		zap.Uint64("amount_in", req.AmountIn))

	// Holdings are opened up front; an empty holding is harmless if the
	// swap fails later.
	acc, err := s.prepareSettlement(ctx, req, d)
	if err != nil {
		return nil, err
	}

	var (
		record    curve.TradeRecord
		completed *curve.BondingCurve
		threshold uint64
	)

	err = s.curves.Update(ctx, req.Mint, func(ctx context.Context, c *curve.BondingCurve) error {
		if err := c.CheckTradable(); err != nil {
			return err
		}
		if req.AmountIn == 0 {
			return curve.ErrZeroAmount
		}

		// One snapshot of the config is used for the whole trade.
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if !req.FeeRecipient.IsZero() && !req.FeeRecipient.Equals(cfg.FeeRecipient) {
			return curve.ErrIncorrectFeeRecipient
		}

		q, err := curve.Price(c.Reserves(), req.AmountIn, d, cfg.FeePercent(d))
		if err != nil {
			return err
		}
		if q.AmountOut == 0 {
			return curve.ErrZeroOutput
		}
		if q.AmountOut < req.MinAmountOut {
			return &curve.SlippageExceededError{AmountOut: q.AmountOut, MinAmountOut: req.MinAmountOut}
		}

		acc.feeRecipient = cfg.FeeRecipient
		if d == curve.Sell {
			if acc.feeHolding, err = s.ledger.OpenHolding(ctx, cfg.FeeRecipient, req.Mint); err != nil {
				return fmt.Errorf("open fee holding: %w", err)
			}
		}

		// Balances are checked before the reserves move.
		batch := s.ledger.Begin()
		if err := settle(ctx, batch, c, q, acc); err != nil {
			batch.Rollback()
			return fmt.Errorf("settle %s: %w", d, err)
		}
		if err := batch.Validate(ctx); err != nil {
			batch.Rollback()
			return fmt.Errorf("settle %s: %w", d, err)
		}

		now := s.now().UTC()
		next, err := c.ApplyTrade(q, cfg.CompletionThreshold, now)
		if err != nil {
			batch.Rollback()
			return err
		}

		if err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("settle %s: %w", d, err)
		}

		*c = next
		record = tradeRecord(req, q, &next, now)
		if next.IsCompleted {
			completed = &next
			threshold = cfg.CompletionThreshold
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, curve.ErrInvariantViolation) {
			log.Error("Reserve invariant violation, swap aborted", zap.Error(err))
		} else {
			log.Debug("Swap rejected", zap.Error(err))
		}
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrCurveNotFound
		}
		if s.rejects != nil {
			s.rejects.Rejected(RejectionReason(err))
		}
		return nil, err
	}

	log.Info("Swap executed",
		zap.String("trade_id", record.ID),
		zap.Uint64("amount_out", record.AmountOut),
		zap.Uint64("fee", record.Fee),
		zap.Uint64("sequence", record.Sequence),
		zap.Uint64("actual_lamport_reserves", record.ActualLamportReserves))

	s.publish(events.NewTradeExecuted(record))
	if completed != nil {
		log.Info("Curve completed",
			zap.Uint64("actual_lamport_reserves", completed.ActualLamportReserves),
			zap.Uint64("completion_threshold", threshold))
		s.publish(events.NewCurveCompleted(*completed, threshold, record.ID, record.ExecutedAt))
	}

	return &record, nil
}

// RejectionReason maps a swap error to a short label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, curve.ErrCurveCompleted):
		return "completed"
	case errors.Is(err, curve.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, curve.ErrZeroOutput):
		return "zero_output"
	case errors.Is(err, curve.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, curve.ErrIncorrectFeeRecipient):
		return "fee_recipient"
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrUnknownHolding):
		// a missing holding is an empty one
		return "insufficient_funds"
	case errors.Is(err, ErrCurveNotFound):
		return "unknown_curve"
	case errors.Is(err, curve.ErrInvariantViolation):
		return "invariant"
	default:
		return "other"
	}
}

func (s *Service) prepareSettlement(ctx context.Context, req SwapRequest, d curve.Direction) (settlement, error) {
	acc := settlement{trader: req.Trader}

	var err error
	if d == curve.Buy {
		acc.traderHolding, err = s.ledger.OpenHolding(ctx, req.Trader, req.Mint)
	} else {
		// Sellers must already hold the token.
		acc.traderHolding, err = ledger.HoldingAddress(req.Trader, req.Mint)
	}
	if err != nil {
		return settlement{}, fmt.Errorf("resolve trader holding: %w", err)
	}
	return acc, nil
}

// settle stages the fee transfer and the net movement in both directions.
//
// Buy: trader pays fee lamports to the recipient and the net lamports to
// the curve authority; the curve releases amount_out tokens from custody.
// Sell: trader pays the fee in tokens to the recipient's holding and the
// net tokens into custody; the curve authority releases amount_out lamports.
func settle(ctx context.Context, t ledger.Transfers, c *curve.BondingCurve, q curve.Quote, acc settlement) error {
	switch q.Direction {
	case curve.Buy:
		if q.Fee > 0 {
			if err := t.TransferLamports(ctx, acc.trader, acc.feeRecipient, q.Fee); err != nil {
				return err
			}
		}
		if err := t.TransferLamports(ctx, acc.trader, c.Authority, q.AmountInAfterFee); err != nil {
			return err
		}
		return t.TransferTokens(ctx, c.Authority, c.CustodyHolding, acc.traderHolding, q.AmountOut)
	case curve.Sell:
		if q.Fee > 0 {
			if err := t.TransferTokens(ctx, acc.trader, acc.traderHolding, acc.feeHolding, q.Fee); err != nil {
				return err
			}
		}
		if err := t.TransferTokens(ctx, acc.trader, acc.traderHolding, c.CustodyHolding, q.AmountInAfterFee); err != nil {
			return err
		}
		return t.TransferLamports(ctx, c.Authority, acc.trader, q.AmountOut)
	default:
		return fmt.Errorf("%w: unknown direction %d", curve.ErrInvariantViolation, q.Direction)
	}
}

func tradeRecord(req SwapRequest, q curve.Quote, next *curve.BondingCurve, now time.Time) curve.TradeRecord {
	return curve.TradeRecord{
		ID:                     TradeID(req.Mint, next.TradeCount),
		Trader:                 req.Trader,
		Mint:                   req.Mint,
		IsBuy:                  q.Direction.IsBuy(),
		AmountIn:               q.AmountIn,
		AmountOut:              q.AmountOut,
		Fee:                    q.Fee,
		Sequence:               next.TradeCount,
		VirtualTokenReserves:   next.VirtualTokenReserves,
		VirtualLamportReserves: next.VirtualLamportReserves,
		ActualLamportReserves:  next.ActualLamportReserves,
		CompletedCurve:         next.IsCompleted,
		ExecutedAt:             now,
	}
}

// TradeID derives a stable identifier from the mint and the trade sequence
// number of its curve.
func TradeID(mint solana.PublicKey, sequence uint64) string {
	var buf [solana.PublicKeyLength + 8]byte
	copy(buf[:], mint[:])
	binary.BigEndian.PutUint64(buf[solana.PublicKeyLength:], sequence)
	sum := sha256.Sum256(buf[:])
	return base58.Encode(sum[:])
}
