// internal/feed/message.go
package feed

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

// Message types sent over the feed.
const (
	TypeSnapshot  = "snapshot"
	TypeConfig    = "config"
	TypeLaunch    = "launch"
	TypeTrade     = "trade"
	TypeCompleted = "completed"
)

// Completion describes a curve that reached its threshold.
type Completion struct {
	Mint                  solana.PublicKey `json:"mint"`
	ActualLamportReserves uint64           `json:"actual_lamport_reserves"`
	CompletionThreshold   uint64           `json:"completion_threshold"`
	TradeID               string           `json:"trade_id"`
}

// Message is one JSON frame of the feed.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`

	Config     *curve.GlobalConfig   `json:"config,omitempty"`
	Curves     []*curve.BondingCurve `json:"curves,omitempty"`
	Curve      *curve.BondingCurve   `json:"curve,omitempty"`
	Trade      *curve.TradeRecord    `json:"trade,omitempty"`
	Completion *Completion           `json:"completion,omitempty"`
}

// FromEvent converts a bus event into a feed message.
func FromEvent(e events.Event) (Message, bool) {
	m := Message{At: e.Timestamp()}
	switch ev := e.(type) {
	case events.ConfigUpdatedEvent:
		m.Type = TypeConfig
		m.Config = &ev.Config
	case events.CurveLaunchedEvent:
		m.Type = TypeLaunch
		m.Curve = &ev.Curve
	case events.TradeExecutedEvent:
		m.Type = TypeTrade
		m.Trade = &ev.Trade
	case events.CurveCompletedEvent:
		m.Type = TypeCompleted
		m.Completion = &Completion{
			Mint:                  ev.Mint,
			ActualLamportReserves: ev.ActualLamportReserves,
			CompletionThreshold:   ev.CompletionThreshold,
			TradeID:               ev.TradeID,
		}
	default:
		return Message{}, false
	}
	return m, true
}
