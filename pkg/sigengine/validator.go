package sigengine

import (
	"math"
	"time"
)

// ValidatorConfig holds the distance/lifetime bounds a proposed signal
// must satisfy (the CC_* validator options of spec.md §6).
type ValidatorConfig struct {
	MinTakeProfitDistancePercent float64
	MinStopLossDistancePercent   float64
	MaxStopLossDistancePercent   float64
	MaxSignalLifetimeMinutes     int
}

// SignalValidator is a pure, side-effect-free check of a proposed signal
// against the structural and economic rules of spec.md §3/§4.2.
type SignalValidator struct {
	cfg ValidatorConfig
}

// NewSignalValidator builds a validator from its configuration snapshot.
func NewSignalValidator(cfg ValidatorConfig) *SignalValidator {
	return &SignalValidator{cfg: cfg}
}

// Validate runs every rule, in the order spec.md §4.2 lists them, and
// returns either a fully populated SignalRecord or the accumulated
// ValidationErrors. now is the caller's current timestamp (used only to
// stamp scheduledAt/pendingAt); currentPrice is the oracle's reference
// price used for the "would close on entry" check.
func (v *SignalValidator) Validate(proposed Signal, symbol, strategyName, exchangeName string, currentPrice float64, now time.Time) (*SignalRecord, error) {
	var errs ValidationErrors

	errs = append(errs, v.checkFiniteness(proposed)...)
	if len(errs) > 0 {
		return nil, errs
	}

	errs = append(errs, v.checkOrdering(proposed)...)
	errs = append(errs, v.checkTakeProfitDistance(proposed, currentPrice)...)
	errs = append(errs, v.checkStopLossDistance(proposed, currentPrice)...)
	errs = append(errs, v.checkLifetime(proposed)...)
	if len(errs) > 0 {
		return nil, errs
	}

	if proposed.PriceOpen == nil {
		if err := v.checkWouldCloseOnEntry(proposed, currentPrice); err != nil {
			return nil, ValidationErrors{*err}
		}
	}

	nowMS := now.UnixMilli()
	id := proposed.ID
	if id == "" {
		id = newID()
	}

	var priceOpen *float64
	if proposed.PriceOpen != nil {
		p := *proposed.PriceOpen
		priceOpen = &p
	}

	rec := &SignalRecord{
		ID:                  id,
		Symbol:              symbol,
		StrategyName:        strategyName,
		ExchangeName:        exchangeName,
		Position:            proposed.Position,
		PriceOpen:           priceOpen,
		PriceTakeProfit:     proposed.PriceTakeProfit,
		PriceStopLoss:       proposed.PriceStopLoss,
		OriginalTakeProfit:  proposed.PriceTakeProfit,
		OriginalStopLoss:    proposed.PriceStopLoss,
		MinuteEstimatedTime: proposed.MinuteEstimatedTime,
		Note:                proposed.Note,
		ScheduledAt:         nowMS,
		PendingAt:           nowMS,
	}
	return rec, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (v *SignalValidator) checkFiniteness(s Signal) ValidationErrors {
	var errs ValidationErrors
	if !finite(s.PriceTakeProfit) || s.PriceTakeProfit <= 0 {
		errs = append(errs, ValidationError{"priceTakeProfit", "must be a finite positive number"})
	}
	if !finite(s.PriceStopLoss) || s.PriceStopLoss <= 0 {
		errs = append(errs, ValidationError{"priceStopLoss", "must be a finite positive number"})
	}
	if s.PriceOpen != nil && (!finite(*s.PriceOpen) || *s.PriceOpen <= 0) {
		errs = append(errs, ValidationError{"priceOpen", "must be a finite positive number"})
	}
	return errs
}

func (v *SignalValidator) checkOrdering(s Signal) ValidationErrors {
	var errs ValidationErrors
	open := s.PriceTakeProfit // placeholder overwritten below if PriceOpen present
	hasOpen := s.PriceOpen != nil
	if hasOpen {
		open = *s.PriceOpen
	}
	if !hasOpen {
		// "open" for ordering purposes is defined at entry time in
		// checkWouldCloseOnEntry; structural ordering still applies
		// using TP/SL on either side of an unknown-but-implied open,
		// so we only check TP != SL and directional consistency here.
		if s.Position == PositionLong && s.PriceStopLoss >= s.PriceTakeProfit {
			errs = append(errs, ValidationError{"priceStopLoss", "must be below priceTakeProfit for a long signal"})
		}
		if s.Position == PositionShort && s.PriceTakeProfit >= s.PriceStopLoss {
			errs = append(errs, ValidationError{"priceTakeProfit", "must be below priceStopLoss for a short signal"})
		}
		return errs
	}

	switch s.Position {
	case PositionLong:
		if !(s.PriceStopLoss < open && open < s.PriceTakeProfit) {
			errs = append(errs, ValidationError{"priceOpen", "long signal requires priceStopLoss < priceOpen < priceTakeProfit"})
		}
	case PositionShort:
		if !(s.PriceTakeProfit < open && open < s.PriceStopLoss) {
			errs = append(errs, ValidationError{"priceOpen", "short signal requires priceTakeProfit < priceOpen < priceStopLoss"})
		}
	}
	return errs
}

// referenceOpen is the price distance calculations are measured from: the
// proposed entry for a scheduled signal, or the oracle's current
// reference price for an immediate one (since an immediate signal has no
// priceOpen until it fills).
func (v *SignalValidator) referenceOpen(s Signal, currentPrice float64) float64 {
	if s.PriceOpen != nil {
		return *s.PriceOpen
	}
	return currentPrice
}

func (v *SignalValidator) checkTakeProfitDistance(s Signal, currentPrice float64) ValidationErrors {
	open := v.referenceOpen(s, currentPrice)
	if open == 0 {
		return nil
	}
	distPct := math.Abs(s.PriceTakeProfit-open) / open * 100
	if distPct < v.cfg.MinTakeProfitDistancePercent {
		return ValidationErrors{{"priceTakeProfit", "distance from priceOpen is below the minimum take-profit distance"}}
	}
	return nil
}

func (v *SignalValidator) checkStopLossDistance(s Signal, currentPrice float64) ValidationErrors {
	open := v.referenceOpen(s, currentPrice)
	if open == 0 {
		return nil
	}
	distPct := math.Abs(s.PriceStopLoss-open) / open * 100
	if distPct < v.cfg.MinStopLossDistancePercent {
		return ValidationErrors{{"priceStopLoss", "distance from priceOpen is below the minimum stop-loss distance"}}
	}
	if distPct > v.cfg.MaxStopLossDistancePercent {
		return ValidationErrors{{"priceStopLoss", "distance from priceOpen exceeds the maximum stop-loss distance"}}
	}
	return nil
}

func (v *SignalValidator) checkLifetime(s Signal) ValidationErrors {
	if s.MinuteEstimatedTime <= 0 {
		return ValidationErrors{{"minuteEstimatedTime", "must be strictly positive"}}
	}
	if s.MinuteEstimatedTime > v.cfg.MaxSignalLifetimeMinutes {
		return ValidationErrors{{"minuteEstimatedTime", "exceeds the maximum signal lifetime"}}
	}
	return nil
}

// checkWouldCloseOnEntry rejects an immediate-entry signal whose current
// reference price does not strictly lie between SL and TP in the
// direction of the position (spec.md §3).
func (v *SignalValidator) checkWouldCloseOnEntry(s Signal, currentPrice float64) *ValidationError {
	switch s.Position {
	case PositionLong:
		if !(s.PriceStopLoss < currentPrice && currentPrice < s.PriceTakeProfit) {
			return &ValidationError{"priceOpen", "immediate long signal would close on entry"}
		}
	case PositionShort:
		if !(s.PriceTakeProfit < currentPrice && currentPrice < s.PriceStopLoss) {
			return &ValidationError{"priceOpen", "immediate short signal would close on entry"}
		}
	}
	return nil
}
