package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// MaxConcurrentPositions rejects a proposal once the portfolio already
// holds max active positions across every strategy.
func MaxConcurrentPositions(max int) sigengine.RiskPredicate {
	return func(ctx sigengine.RiskCheckContext) error {
		if ctx.ActivePositionCount >= max {
			return fmt.Errorf("max concurrent positions (%d) reached", max)
		}
		return nil
	}
}

// SymbolExclusivity rejects a proposal for a symbol that already has an
// active position under any strategy, preventing two strategies from
// independently fighting over the same instrument.
func SymbolExclusivity() sigengine.RiskPredicate {
	return func(ctx sigengine.RiskCheckContext) error {
		for _, p := range ctx.ActivePositions {
			if p.Signal.Symbol == ctx.Symbol {
				return fmt.Errorf("symbol %s already has an active position under strategy %q", ctx.Symbol, p.StrategyName)
			}
		}
		return nil
	}
}

// MinRewardRiskRatio rejects a proposal whose take-profit distance does
// not exceed its stop-loss distance by at least ratio.
func MinRewardRiskRatio(ratio float64) sigengine.RiskPredicate {
	return func(ctx sigengine.RiskCheckContext) error {
		s := ctx.Proposed
		open := ctx.CurrentPrice
		if s.PriceOpen != nil {
			open = *s.PriceOpen
		}
		reward := math.Abs(s.PriceTakeProfit - open)
		risk := math.Abs(s.PriceStopLoss - open)
		if risk == 0 || reward/risk < ratio {
			return fmt.Errorf("reward/risk ratio below the required %.2f", ratio)
		}
		return nil
	}
}

// TradingHoursWindow rejects proposals outside [startHourUTC, endHourUTC).
func TradingHoursWindow(startHourUTC, endHourUTC int) sigengine.RiskPredicate {
	return func(ctx sigengine.RiskCheckContext) error {
		hour := time.UnixMilli(ctx.TimestampMS).UTC().Hour()
		if hour < startHourUTC || hour >= endHourUTC {
			return fmt.Errorf("outside trading window [%d,%d) UTC", startHourUTC, endHourUTC)
		}
		return nil
	}
}

// CrossStrategyDeduplication rejects a proposal whose direction matches a
// position another strategy already holds on the same symbol — a cheap
// guard against redundant correlated bets. Price levels are not compared.
func CrossStrategyDeduplication() sigengine.RiskPredicate {
	return func(ctx sigengine.RiskCheckContext) error {
		for _, p := range ctx.ActivePositions {
			if p.Signal.Symbol == ctx.Symbol &&
				p.Signal.Position == ctx.Proposed.Position &&
				p.StrategyName != ctx.StrategyName {
				return fmt.Errorf("strategy %q already holds an equivalent %s position on %s", p.StrategyName, p.Signal.Position, ctx.Symbol)
			}
		}
		return nil
	}
}
