// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
)

// EventType represents the type of event.
type EventType string

const (
	// Admin events
	ConfigUpdated EventType = "config.updated"

	// Curve lifecycle events
	CurveLaunched  EventType = "curve.launched"
	CurveCompleted EventType = "curve.completed"

	// Trading events
	TradeExecuted EventType = "trade.executed"
)

// AllTypes lists every event type emitted by the launchpad.
var AllTypes = []EventType{ConfigUpdated, CurveLaunched, TradeExecuted, CurveCompleted}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func base(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// ConfigUpdatedEvent is emitted after the admin replaces the global config.
type ConfigUpdatedEvent struct {
	BaseEvent
	Config curve.GlobalConfig
}

// NewConfigUpdated builds a ConfigUpdatedEvent.
func NewConfigUpdated(cfg curve.GlobalConfig, at time.Time) ConfigUpdatedEvent {
	return ConfigUpdatedEvent{BaseEvent: base(ConfigUpdated, at), Config: cfg}
}

// CurveLaunchedEvent is emitted once a new token and its curve exist.
type CurveLaunchedEvent struct {
	BaseEvent
	Curve curve.BondingCurve
}

// NewCurveLaunched builds a CurveLaunchedEvent.
func NewCurveLaunched(c curve.BondingCurve, at time.Time) CurveLaunchedEvent {
	return CurveLaunchedEvent{BaseEvent: base(CurveLaunched, at), Curve: c}
}

// TradeExecutedEvent is emitted for every committed swap.
type TradeExecutedEvent struct {
	BaseEvent
	Trade curve.TradeRecord
}

// NewTradeExecuted builds a TradeExecutedEvent.
func NewTradeExecuted(t curve.TradeRecord) TradeExecutedEvent {
	return TradeExecutedEvent{BaseEvent: base(TradeExecuted, t.ExecutedAt), Trade: t}
}

// CurveCompletedEvent is emitted by the buy that crosses the completion
// threshold.
type CurveCompletedEvent struct {
	BaseEvent
	Mint                  solana.PublicKey
	ActualLamportReserves uint64
	CompletionThreshold   uint64
	TradeID               string
}

// NewCurveCompleted builds a CurveCompletedEvent.
func NewCurveCompleted(c curve.BondingCurve, threshold uint64, tradeID string, at time.Time) CurveCompletedEvent {
	return CurveCompletedEvent{
		BaseEvent:             base(CurveCompleted, at),
		Mint:                  c.Mint,
		ActualLamportReserves: c.ActualLamportReserves,
		CompletionThreshold:   threshold,
		TradeID:               tradeID,
	}
}
