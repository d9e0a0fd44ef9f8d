// Package strategies holds example Strategy.GetSignal implementations for
// the CLI drivers — not part of the reusable engine, just reference
// collaborators a caller can register or copy.
package strategies

import (
	"context"
	"fmt"

	"github.com/cinar/indicator/v2/trend"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// TrendFollowConfig mirrors the fast/slow EMA crossover settings of a
// classic trend-following agent.
type TrendFollowConfig struct {
	FastPeriod          int
	SlowPeriod          int
	LookbackCandles     int
	TakeProfitPercent   float64
	StopLossPercent     float64
	MinuteEstimatedTime int
}

// DefaultTrendFollowConfig returns reasonable defaults.
func DefaultTrendFollowConfig() TrendFollowConfig {
	return TrendFollowConfig{
		FastPeriod:          12,
		SlowPeriod:          26,
		LookbackCandles:     60,
		TakeProfitPercent:   1.5,
		StopLossPercent:     0.8,
		MinuteEstimatedTime: 120,
	}
}

// NewTrendFollow builds a GetSignal function that opens in the direction
// of a fast/slow EMA crossover, immediate entry at the current reference
// price (the engine's oracle supplies the fill price).
func NewTrendFollow(fetcher sigengine.CandleFetcher, cfg TrendFollowConfig) func(ctx context.Context, symbol string) (*sigengine.Signal, error) {
	return func(ctx context.Context, symbol string) (*sigengine.Signal, error) {
		candles, err := fetcher.GetCandlesNext(ctx, symbol, sigengine.Interval1m, cfg.LookbackCandles)
		if err != nil {
			return nil, fmt.Errorf("trend-follow: fetch candles: %w", err)
		}
		if len(candles) < cfg.SlowPeriod+1 {
			return nil, nil
		}

		fast := emaSeries(candles, cfg.FastPeriod)
		slow := emaSeries(candles, cfg.SlowPeriod)
		nf, ns := len(fast), len(slow)
		if nf < 2 || ns < 2 {
			return nil, nil
		}

		// Each series is indexed from its own end: the slow EMA has a
		// longer warm-up, so the two are shorter than the input by
		// different amounts and only their tails line up with the candles.
		prevDiff := fast[nf-2] - slow[ns-2]
		currDiff := fast[nf-1] - slow[ns-1]
		last := candles[len(candles)-1].Close

		switch {
		case prevDiff <= 0 && currDiff > 0:
			return longSignal(last, cfg), nil
		case prevDiff >= 0 && currDiff < 0:
			return shortSignal(last, cfg), nil
		default:
			return nil, nil
		}
	}
}

func longSignal(price float64, cfg TrendFollowConfig) *sigengine.Signal {
	return &sigengine.Signal{
		Position:            sigengine.PositionLong,
		PriceTakeProfit:     price * (1 + cfg.TakeProfitPercent/100),
		PriceStopLoss:       price * (1 - cfg.StopLossPercent/100),
		MinuteEstimatedTime: cfg.MinuteEstimatedTime,
		Note:                "fast EMA crossed above slow EMA",
	}
}

func shortSignal(price float64, cfg TrendFollowConfig) *sigengine.Signal {
	return &sigengine.Signal{
		Position:            sigengine.PositionShort,
		PriceTakeProfit:     price * (1 - cfg.TakeProfitPercent/100),
		PriceStopLoss:       price * (1 + cfg.StopLossPercent/100),
		MinuteEstimatedTime: cfg.MinuteEstimatedTime,
		Note:                "fast EMA crossed below slow EMA",
	}
}

func emaSeries(candles []sigengine.Candle, period int) []float64 {
	in := make(chan float64, len(candles))
	for _, c := range candles {
		in <- c.Close
	}
	close(in)

	out := trend.NewEmaWithPeriod[float64](period).Compute(in)
	var values []float64
	for v := range out {
		values = append(values, v)
	}
	return values
}
