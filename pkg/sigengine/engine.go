package sigengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sigtrader/enginecore/internal/persistence"
)

// RiskGate is the portfolio-level veto collaborator the engine consults
// before opening a position (spec.md §4.5). Concrete implementations
// live in internal/risk.
type RiskGate interface {
	Check(ctx context.Context, rc RiskCheckContext) error
	Add(ctx context.Context, rec SignalRecord, strategyName, exchangeName string) error
	Drop(ctx context.Context, strategyName, symbol string) error
}

// EngineConfig holds the per-engine timing bounds that aren't already
// carried by Strategy (CC_SCHEDULE_AWAIT_MINUTES, CC_MAX_SIGNAL_GENERATION_SECONDS).
type EngineConfig struct {
	ScheduleAwait       time.Duration
	MaxSignalGeneration time.Duration
}

const recordEntityID = "record"

// SignalEngine is the per-(strategyName, symbol) state machine of
// spec.md §4.6. One instance owns exactly one slot. The signal record and
// its state are reloaded from persistence by ensureLoaded; the getSignal
// throttle timestamp and the stop flag are held in memory only, and a
// fresh instance pointed at the same store starts without them.
type SignalEngine struct {
	strategy     *Strategy
	symbol       string
	exchangeName string

	store     persistence.Store
	validator *SignalValidator
	risk      RiskGate
	oracle    *PriceOracle
	pnl       *PNLCalculator
	bus       *EventBus
	cfg       EngineConfig
	log       zerolog.Logger

	mu            sync.Mutex
	loaded        bool
	record        *SignalRecord
	state         SignalState
	lastGetSignal time.Time
	stopped       bool
}

// NewSignalEngine wires one slot. exchangeName is carried through to
// RiskPosition bookkeeping only; the engine never submits orders.
func NewSignalEngine(
	strategy *Strategy,
	symbol, exchangeName string,
	store persistence.Store,
	validator *SignalValidator,
	risk RiskGate,
	oracle *PriceOracle,
	pnl *PNLCalculator,
	bus *EventBus,
	cfg EngineConfig,
	log zerolog.Logger,
) *SignalEngine {
	return &SignalEngine{
		strategy:     strategy,
		symbol:       symbol,
		exchangeName: exchangeName,
		store:        store,
		validator:    validator,
		risk:         risk,
		oracle:       oracle,
		pnl:          pnl,
		bus:          bus,
		cfg:          cfg,
		log:          log,
		state:        StateIdle,
	}
}

func (e *SignalEngine) namespace() string {
	return fmt.Sprintf("signal/%s/%s", e.strategy.Name, e.symbol)
}

// Stop prevents future getSignal invocations for this slot without
// forcibly closing a live position (spec.md §4.6 "Idempotence and
// cancellation"). Safe to call more than once.
func (e *SignalEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
}

// Idle reports whether the slot is in the idle state. It does not look at
// the stop flag; LiveDriver pairs it with its own stop check before
// exiting gracefully.
func (e *SignalEngine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateIdle
}

func (e *SignalEngine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	e.loaded = true

	data, err := e.store.Read(ctx, e.namespace(), recordEntityID)
	if errors.Is(err, persistence.ErrNotFound) {
		e.state = StateIdle
		return nil
	}
	if err != nil {
		return &FatalError{Err: err}
	}

	var rec SignalRecord
	if jsonErr := json.Unmarshal(data, &rec); jsonErr != nil {
		e.log.Warn().Err(jsonErr).Str("symbol", e.symbol).Str("strategy", e.strategy.Name).
			Msg("corrupt persisted signal record, reverting slot to idle")
		_ = e.store.Remove(ctx, e.namespace(), recordEntityID)
		e.state = StateIdle
		return nil
	}

	e.record = &rec
	e.state = rec.State
	return nil
}

func (e *SignalEngine) persistRecord(ctx context.Context, state SignalState) error {
	e.record.State = state
	data, err := json.Marshal(e.record)
	if err != nil {
		return &FatalError{Err: err}
	}
	if err := e.store.Write(ctx, e.namespace(), recordEntityID, data); err != nil {
		return &FatalError{Err: err}
	}
	e.state = state
	return nil
}

func (e *SignalEngine) clearRecord(ctx context.Context) error {
	if err := e.store.Remove(ctx, e.namespace(), recordEntityID); err != nil {
		return &FatalError{Err: err}
	}
	if err := e.risk.Drop(ctx, e.strategy.Name, e.symbol); err != nil {
		e.log.Warn().Err(err).Str("symbol", e.symbol).Msg("risk gate drop failed")
	}
	e.record = nil
	e.state = StateIdle
	return nil
}

// emit stamps ev with the tick timestamp that produced it before handing
// it to the bus, so a replayed backtest emits a bit-identical stream of
// TimestampMS values run to run (spec.md §8 property 6) instead of
// falling back to wall-clock time.
func (e *SignalEngine) emit(ev Event, now time.Time) {
	ev.StrategyName = e.strategy.Name
	ev.Symbol = e.symbol
	ev.TimestampMS = now.UnixMilli()
	e.bus.Emit(ev)
	e.dispatchCallback(ev)
}

func (e *SignalEngine) dispatchCallback(ev Event) {
	cb := e.strategy.Callbacks
	switch ev.Kind {
	case EventOpened:
		if cb.OnOpen != nil {
			cb.OnOpen(ev)
		}
	case EventClosed:
		if cb.OnClose != nil {
			cb.OnClose(ev)
		}
	case EventActive:
		if cb.OnActive != nil {
			cb.OnActive(ev)
		}
	case EventIdle:
		if cb.OnIdle != nil {
			cb.OnIdle(ev)
		}
	case EventScheduled:
		if cb.OnSchedule != nil {
			cb.OnSchedule(ev)
		}
	case EventCancelled:
		if cb.OnCancel != nil {
			cb.OnCancel(ev)
		}
	}
}

// Tick drives the slot forward by exactly one step of spec.md §4.6's
// tick(symbol, now) contract.
func (e *SignalEngine) Tick(ctx context.Context, now time.Time) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoaded(ctx); err != nil {
		return Event{}, err
	}

	switch e.state {
	case StateIdle:
		return e.tickIdle(ctx, now)
	case StateScheduled:
		return e.tickScheduled(ctx, now)
	case StateOpened:
		return e.tickOpened(ctx, now)
	case StateActive:
		return e.tickActive(ctx, now)
	default:
		return Event{}, fmt.Errorf("engine: slot %s/%s in unexpected state %q", e.strategy.Name, e.symbol, e.state)
	}
}

func (e *SignalEngine) tickIdle(ctx context.Context, now time.Time) (Event, error) {
	if e.stopped {
		ev := Event{Kind: EventIdle}
		e.emit(ev, now)
		return ev, nil
	}

	if !e.lastGetSignal.IsZero() && now.Sub(e.lastGetSignal) < e.strategy.Interval {
		ev := Event{Kind: EventIdle}
		e.emit(ev, now)
		return ev, nil
	}
	e.lastGetSignal = now

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.MaxSignalGeneration)
	proposed, err := e.callGetSignal(genCtx)
	cancel()
	if err != nil {
		ev := Event{Kind: EventError, Reason: err.Error(), Err: err}
		e.emit(ev, now)
		return Event{Kind: EventIdle}, nil
	}
	if proposed == nil {
		ev := Event{Kind: EventIdle}
		e.emit(ev, now)
		return ev, nil
	}

	price, err := e.oracle.Price(ctx, e.symbol, now)
	if err != nil {
		ev := Event{Kind: EventError, Reason: err.Error(), Err: err}
		e.emit(ev, now)
		return Event{Kind: EventIdle}, nil
	}

	rec, verr := e.validator.Validate(*proposed, e.symbol, e.strategy.Name, e.exchangeName, price, now)
	if verr != nil {
		ev := Event{Kind: EventError, Reason: verr.Error(), Err: verr}
		e.emit(ev, now)
		return Event{Kind: EventIdle}, nil
	}

	riskCtx := RiskCheckContext{
		Symbol:       e.symbol,
		Proposed:     *rec,
		StrategyName: e.strategy.Name,
		CurrentPrice: price,
		TimestampMS:  now.UnixMilli(),
	}
	if rerr := e.risk.Check(ctx, riskCtx); rerr != nil {
		ev := Event{Kind: EventRiskRejection, Signal: rec, Reason: rerr.Error()}
		e.emit(ev, now)
		return Event{Kind: EventIdle}, nil
	}

	e.record = rec

	immediate := rec.IsImmediate() || *rec.PriceOpen == price
	if immediate {
		entryPrice := price
		rec.PriceOpen = &entryPrice
		rec.PendingAt = now.UnixMilli()
		if err := e.persistRecord(ctx, StateOpened); err != nil {
			return Event{}, err
		}
		if err := e.risk.Add(ctx, *e.record, e.strategy.Name, e.exchangeName); err != nil {
			e.log.Warn().Err(err).Msg("risk gate add failed")
		}
		ev := Event{Kind: EventOpened, Signal: e.record}
		e.emit(ev, now)
		return ev, nil
	}

	if err := e.persistRecord(ctx, StateScheduled); err != nil {
		return Event{}, err
	}
	ev := Event{Kind: EventScheduled, Signal: e.record}
	e.emit(ev, now)
	return ev, nil
}

func (e *SignalEngine) callGetSignal(ctx context.Context) (sig *Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{StrategyName: e.strategy.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	type result struct {
		sig *Signal
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, getErr := e.strategy.GetSignal(ctx, e.symbol)
		done <- result{s, getErr}
	}()

	select {
	case <-ctx.Done():
		return nil, &StrategyError{StrategyName: e.strategy.Name, Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return nil, &StrategyError{StrategyName: e.strategy.Name, Err: r.err}
		}
		return r.sig, nil
	}
}

func (e *SignalEngine) tickScheduled(ctx context.Context, now time.Time) (Event, error) {
	rec := e.record

	if now.Sub(time.UnixMilli(rec.ScheduledAt)) >= e.cfg.ScheduleAwait {
		return e.cancel(ctx, now, CancelScheduleTimeout)
	}

	price, err := e.oracle.Price(ctx, e.symbol, now)
	if err != nil {
		ev := Event{Kind: EventError, Reason: err.Error(), Err: err}
		e.emit(ev, now)
		return Event{Kind: EventScheduled, Signal: rec}, nil
	}

	switch scheduledOutcome(rec, price, price) {
	case outcomeCancel:
		return e.cancel(ctx, now, CancelStopLossBeforeActivation)
	case outcomeOpen:
		return e.open(ctx, now)
	default:
		ev := Event{Kind: EventScheduled, Signal: rec}
		e.emit(ev, now)
		return ev, nil
	}
}

func (e *SignalEngine) cancel(ctx context.Context, now time.Time, reason CancelReason) (Event, error) {
	rec := e.record
	if err := e.clearRecord(ctx); err != nil {
		return Event{}, err
	}
	ev := Event{Kind: EventCancelled, Signal: rec, CancelReason: reason}
	e.emit(ev, now)
	return ev, nil
}

func (e *SignalEngine) open(ctx context.Context, now time.Time) (Event, error) {
	rec := e.record
	rec.PendingAt = now.UnixMilli()
	if err := e.persistRecord(ctx, StateOpened); err != nil {
		return Event{}, err
	}
	if err := e.risk.Add(ctx, *rec, e.strategy.Name, e.exchangeName); err != nil {
		e.log.Warn().Err(err).Msg("risk gate add failed")
	}
	ev := Event{Kind: EventOpened, Signal: rec}
	e.emit(ev, now)
	return ev, nil
}

// tickOpened is the one-tick transient: the very next tick after an
// opened event always becomes active, without re-evaluating exits
// against the candle that triggered entry.
func (e *SignalEngine) tickOpened(ctx context.Context, now time.Time) (Event, error) {
	if err := e.persistRecord(ctx, StateActive); err != nil {
		return Event{}, err
	}
	ev := Event{Kind: EventActive, Signal: e.record}
	e.emit(ev, now)
	return ev, nil
}

func (e *SignalEngine) tickActive(ctx context.Context, now time.Time) (Event, error) {
	rec := e.record

	price, err := e.oracle.Price(ctx, e.symbol, now)
	if err != nil {
		ev := Event{Kind: EventError, Reason: err.Error(), Err: err}
		e.emit(ev, now)
		return Event{Kind: EventActive, Signal: rec}, nil
	}

	if reason, hit := activeExitOutcome(rec, price, price); hit {
		return e.close(ctx, now, rec.priceOpenValue(), price, reason)
	}
	if expired(rec, now) {
		return e.close(ctx, now, rec.priceOpenValue(), price, CloseTimeExpired)
	}

	ev := Event{Kind: EventActive, Signal: rec}
	e.emit(ev, now)
	return ev, nil
}

func expired(rec *SignalRecord, now time.Time) bool {
	deadline := time.UnixMilli(rec.PendingAt).Add(time.Duration(rec.MinuteEstimatedTime) * time.Minute)
	return !now.Before(deadline)
}

func (e *SignalEngine) close(ctx context.Context, now time.Time, priceOpen, priceClose float64, reason CloseReason) (Event, error) {
	rec := e.record
	result := e.pnl.Compute(rec.Position, priceOpen, priceClose, reason)
	if err := e.clearRecord(ctx); err != nil {
		return Event{}, err
	}
	ev := Event{Kind: EventClosed, Signal: rec, CloseReason: reason, PNL: &result}
	e.emit(ev, now)
	return ev, nil
}

// Backtest fast-forwards an already-opened slot across a historical
// candle series, applying the same exit rules per-candle evaluation
// would apply. It returns the closed event when a candle triggers an
// exit; if the candles run out first it returns an active event stamped
// with the last candle's timestamp (or an idle event if the slot was not
// open). The driver only calls Backtest
// immediately after Tick has returned an opened event, so the slot is
// always Opened or Active on entry; scheduled activation is still
// decided tick-by-tick against the oracle's reference price.
//
// The active-exit check tests each candle's low/high range against the
// stop-loss and take-profit levels (stop-loss first, so it wins when one
// candle touches both); the candle's close is the exit price passed to
// the PNL calculation.
func (e *SignalEngine) Backtest(ctx context.Context, candles []Candle) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoaded(ctx); err != nil {
		return Event{}, err
	}

	var lastTS time.Time

	for _, c := range candles {
		now := time.UnixMilli(c.TimestampMS)
		lastTS = now

		if e.state == StateOpened {
			if err := e.persistRecord(ctx, StateActive); err != nil {
				return Event{}, err
			}
			e.emit(Event{Kind: EventActive, Signal: e.record}, now)
			continue
		}

		if e.state != StateActive {
			break
		}

		rec := e.record
		if reason, hit := activeExitOutcome(rec, c.Low, c.High); hit {
			return e.close(ctx, now, rec.priceOpenValue(), c.Close, reason)
		}
		if expired(rec, now) {
			return e.close(ctx, now, rec.priceOpenValue(), c.Close, CloseTimeExpired)
		}
	}

	if e.state == StateActive || e.state == StateOpened {
		return Event{Kind: EventActive, Signal: e.record, TimestampMS: lastTS.UnixMilli()}, nil
	}
	return Event{Kind: EventIdle, TimestampMS: lastTS.UnixMilli()}, nil
}

// priceOpenValue returns the fill price recorded at entry. Both the
// scheduled-then-activated path and the immediate-entry path populate
// PriceOpen by the time the slot reaches Opened.
func (r *SignalRecord) priceOpenValue() float64 {
	if r.PriceOpen != nil {
		return *r.PriceOpen
	}
	return 0
}

type scheduleOutcome int

const (
	outcomeWait scheduleOutcome = iota
	outcomeOpen
	outcomeCancel
)

// scheduledOutcome implements the activation-vs-stop priority of
// spec.md §4.6: the stop side is checked first, so a candle spanning
// both entry and stop never opens only to immediately close.
func scheduledOutcome(rec *SignalRecord, low, high float64) scheduleOutcome {
	open := *rec.PriceOpen
	switch rec.Position {
	case PositionLong:
		if low <= rec.PriceStopLoss {
			return outcomeCancel
		}
		if low <= open {
			return outcomeOpen
		}
	case PositionShort:
		if high >= rec.PriceStopLoss {
			return outcomeCancel
		}
		if high >= open {
			return outcomeOpen
		}
	}
	return outcomeWait
}

// activeExitOutcome implements the TP/SL evaluation of spec.md §4.6,
// with the pessimistic stop_loss-wins tie-break when both sides are
// touched within the same low/high range.
func activeExitOutcome(rec *SignalRecord, low, high float64) (CloseReason, bool) {
	switch rec.Position {
	case PositionLong:
		slHit := low <= rec.PriceStopLoss
		tpHit := high >= rec.PriceTakeProfit
		if slHit {
			return CloseStopLoss, true
		}
		if tpHit {
			return CloseTakeProfit, true
		}
	case PositionShort:
		slHit := high >= rec.PriceStopLoss
		tpHit := low <= rec.PriceTakeProfit
		if slHit {
			return CloseStopLoss, true
		}
		if tpHit {
			return CloseTakeProfit, true
		}
	}
	return "", false
}
