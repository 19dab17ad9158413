// internal/events/recorder.go
package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/storage"
)

// TradeRecorder persists executed trades into a TradeStore.
type TradeRecorder struct {
	store  storage.TradeStore
	logger *zap.Logger
}

// NewTradeRecorder creates a recorder writing to store.
func NewTradeRecorder(store storage.TradeStore, logger *zap.Logger) *TradeRecorder {
	return &TradeRecorder{store: store, logger: logger.Named("trade_recorder")}
}

// Attach subscribes the recorder to TradeExecuted events.
func (r *TradeRecorder) Attach(b *Bus) Subscription {
	return b.Subscribe(TradeExecuted, r)
}

// Handle stores the trade carried by a TradeExecutedEvent. Redelivered
// trades are ignored.
func (r *TradeRecorder) Handle(ctx context.Context, event Event) error {
	e, ok := event.(TradeExecutedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	trade := e.Trade
	if err := r.store.Insert(ctx, &trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.logger.Debug("Trade already recorded", zap.String("trade_id", trade.ID))
			return nil
		}
		return fmt.Errorf("record trade %s: %w", trade.ID, err)
	}

	r.logger.Debug("Trade recorded",
		zap.String("trade_id", trade.ID),
		zap.String("mint", trade.Mint.String()),
		zap.Uint64("sequence", trade.Sequence))
	return nil
}

var _ Handler = (*TradeRecorder)(nil)
