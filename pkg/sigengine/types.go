// Package sigengine implements the per-(strategy,symbol) signal state
// machine and the backtest/live drivers that walk it forward in time.
package sigengine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Position is the side of a trade.
type Position string

const (
	PositionLong  Position = "long"
	PositionShort Position = "short"
)

// SignalState is exactly one of the six states in spec.md §3.
type SignalState string

const (
	StateIdle      SignalState = "idle"
	StateScheduled SignalState = "scheduled"
	StateOpened    SignalState = "opened"
	StateActive    SignalState = "active"
	StateClosed    SignalState = "closed"
	StateCancelled SignalState = "cancelled"
)

// CloseReason identifies why an active signal was closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTimeExpired CloseReason = "time_expired"
)

// CancelReason identifies why a scheduled signal was cancelled.
type CancelReason string

const (
	CancelStopLossBeforeActivation CancelReason = "stop_loss_before_activation"
	CancelScheduleTimeout          CancelReason = "schedule_timeout"
)

// Signal is the proposal a strategy emits each tick. Absence of PriceOpen
// means "enter at market".
type Signal struct {
	Position            Position
	PriceOpen           *float64
	PriceTakeProfit     float64
	PriceStopLoss       float64
	MinuteEstimatedTime int
	Note                string
	ID                  string // optional; a UUID v4 is generated if empty
}

// SignalRecord is a validated Signal augmented with engine-assigned
// bookkeeping fields. It is the unit persisted under
// signal/{strategyName}/{symbol}.
type SignalRecord struct {
	ID                  string      `json:"id"`
	Symbol              string      `json:"symbol"`
	StrategyName        string      `json:"strategyName"`
	ExchangeName        string      `json:"exchangeName"`
	Position            Position    `json:"position"`
	PriceOpen           *float64    `json:"priceOpen,omitempty"`
	PriceTakeProfit     float64     `json:"priceTakeProfit"`
	PriceStopLoss       float64     `json:"priceStopLoss"`
	OriginalTakeProfit  float64     `json:"originalTakeProfit"`
	OriginalStopLoss    float64     `json:"originalStopLoss"`
	MinuteEstimatedTime int         `json:"minuteEstimatedTime"`
	Note                string      `json:"note,omitempty"`
	ScheduledAt         int64       `json:"scheduledAt"`
	PendingAt           int64       `json:"pendingAt"`

	// State is persisted alongside the record so that a restart can
	// distinguish scheduled, opened and active without replaying
	// history; a slot restored in "opened" moves to "active" on its next
	// tick.
	State SignalState `json:"state"`
}

// IsImmediate reports whether the signal enters at market (no PriceOpen).
func (s *SignalRecord) IsImmediate() bool {
	return s.PriceOpen == nil
}

// Candle is one OHLCV bar. Immutable once observed.
type Candle struct {
	TimestampMS int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Interval is a candle granularity recognized by Frame.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
)

// Duration returns the wall-clock span of one candle of this interval.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval3m:
		return 3 * time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval2h:
		return 2 * time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval8h:
		return 8 * time.Hour
	case Interval12h:
		return 12 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval3d:
		return 72 * time.Hour
	default:
		return time.Minute
	}
}

// Frame bounds a backtest's ordered timestamp sequence.
type Frame struct {
	Name      string
	Interval  Interval
	StartDate time.Time
	EndDate   time.Time
}

// Timestamps materializes startDate, startDate+interval, …, ≤ endDate.
func (f Frame) Timestamps() []time.Time {
	step := f.Interval.Duration()
	if step <= 0 {
		return nil
	}
	var out []time.Time
	for t := f.StartDate; !t.After(f.EndDate); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// CandleFetcher is the abstract candle data source the core consumes.
// Real implementations live in internal/exchange.
type CandleFetcher interface {
	// GetCandles returns candles starting at since, chronologically
	// ordered, non-overlapping, up to limit.
	GetCandles(ctx context.Context, symbol string, interval Interval, since time.Time, limit int) ([]Candle, error)

	// GetCandlesNext returns the next limit candles from the source's own
	// position. The bundled strategies read their lookback windows
	// through it; BacktestDriver's fast-forward does not use it and calls
	// GetCandles from the tick timestamp instead.
	GetCandlesNext(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
}

// RiskPosition is a copy of an active signal tracked by the risk gate,
// keyed globally by (strategyName, symbol).
type RiskPosition struct {
	Signal       SignalRecord `json:"signal"`
	StrategyName string       `json:"strategyName"`
	ExchangeName string       `json:"exchangeName"`
	OpenedAtMS   int64        `json:"openedAtMs"`
}

// RiskCheckContext is the payload RiskGate predicates evaluate against.
type RiskCheckContext struct {
	Symbol              string
	Proposed            SignalRecord
	StrategyName         string
	CurrentPrice        float64
	TimestampMS         int64
	ActivePositionCount int
	ActivePositions     []RiskPosition
}

// RiskPredicate vetoes a proposed signal given the current portfolio-wide
// context. Returning a non-nil error rejects the signal with that reason.
type RiskPredicate func(ctx RiskCheckContext) error

// Strategy is the user-supplied signal-generation collaborator.
type Strategy struct {
	Name           string
	Interval       time.Duration
	GetSignal      func(ctx context.Context, symbol string) (*Signal, error)
	RiskName       string
	SizingName     string
	Callbacks      StrategyCallbacks
}

// StrategyCallbacks are optional hooks the engine invokes as the slot
// transitions through states.
type StrategyCallbacks struct {
	OnOpen     func(Event)
	OnClose    func(Event)
	OnActive   func(Event)
	OnIdle     func(Event)
	OnSchedule func(Event)
	OnCancel   func(Event)
}

func newID() string {
	return uuid.NewString()
}
