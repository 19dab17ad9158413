package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
)

func trade(seq uint64) curve.TradeRecord {
	return curve.TradeRecord{
		ID:         "t" + string(rune('0'+seq)),
		Mint:       solana.PublicKey{1},
		Trader:     solana.PublicKey{2},
		Sequence:   seq,
		ExecutedAt: time.Now(),
	}
}

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var (
		mu   sync.Mutex
		seen []uint64
	)
	bus.SubscribeFunc(TradeExecuted, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.(TradeExecutedEvent).Trade.Sequence)
		return nil
	})

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, bus.Publish(NewTradeExecuted(trade(seq))))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
	assert.ErrorIs(t, bus.Publish(NewTradeExecuted(trade(6))), ErrBusClosed)
}

func TestBus_PublishSyncJoinsErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(CurveCompleted, func(context.Context, Event) error { return boom })
	bus.SubscribeFunc(CurveCompleted, func(context.Context, Event) error { return nil })

	err := bus.PublishSync(context.Background(), NewCurveCompleted(curve.BondingCurve{}, 1, "t", time.Now()))
	assert.ErrorIs(t, err, boom)

	// no handlers is not an error
	assert.NoError(t, bus.PublishSync(context.Background(), NewConfigUpdated(curve.GlobalConfig{}, time.Now())))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	calls := 0
	sub := SubscribeAll(bus, []EventType{CurveLaunched, TradeExecuted}, HandlerFunc(func(context.Context, Event) error {
		calls++
		return nil
	}))

	stats := bus.Stats()
	assert.Equal(t, 1, stats.Handlers[CurveLaunched])
	assert.Equal(t, 1, stats.Handlers[TradeExecuted])

	require.NoError(t, bus.PublishSync(context.Background(), NewCurveLaunched(curve.BondingCurve{}, time.Now())))
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), NewTradeExecuted(trade(1))))

	assert.Equal(t, 1, calls)
	assert.Empty(t, bus.Stats().Handlers)
	assert.Equal(t, uint64(1), bus.Stats().Delivered)
}

func TestBus_BufferFull(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.SubscribeFunc(TradeExecuted, func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	require.NoError(t, bus.Publish(NewTradeExecuted(trade(1))))
	<-started // worker is now blocked inside the handler
	require.NoError(t, bus.Publish(NewTradeExecuted(trade(2))))
	assert.ErrorIs(t, bus.Publish(NewTradeExecuted(trade(3))), ErrBufferFull)
	assert.Equal(t, uint64(1), bus.Stats().Dropped)

	close(release)
	require.NoError(t, bus.Shutdown(context.Background()))
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.Equal(t, uint64(2), bus.Stats().Delivered)
}

func TestBus_HandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer bus.Shutdown(context.Background())

	var order []string
	for _, name := range []string{"recorder", "metrics", "feed"} {
		bus.SubscribeFunc(TradeExecuted, func(context.Context, Event) error {
			order = append(order, name)
			return nil
		})
	}

	boom := errors.New("boom")
	bus.SubscribeFunc(TradeExecuted, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), NewTradeExecuted(trade(1)))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"recorder", "metrics", "feed"}, order)
	assert.Equal(t, uint64(1), bus.Stats().Failed)
}
