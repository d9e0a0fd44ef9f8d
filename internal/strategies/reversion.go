package strategies

import (
	"context"
	"fmt"

	"github.com/cinar/indicator/v2/momentum"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// MeanReversionConfig mirrors the RSI oversold/overbought thresholds of a
// classic reversion agent.
type MeanReversionConfig struct {
	RSIPeriod           int
	RSIOversold         float64
	RSIOverbought       float64
	LookbackCandles     int
	TakeProfitPercent   float64
	StopLossPercent     float64
	MinuteEstimatedTime int
}

// DefaultMeanReversionConfig returns the teacher's usual oversold/overbought
// bounds (30/70) with a 14-period RSI.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		RSIPeriod:           14,
		RSIOversold:         30,
		RSIOverbought:       70,
		LookbackCandles:     60,
		TakeProfitPercent:   1.0,
		StopLossPercent:     1.2,
		MinuteEstimatedTime: 90,
	}
}

// NewMeanReversion builds a GetSignal function that fades RSI extremes:
// long when RSI crosses back up through oversold, short when it crosses
// back down through overbought. Entry is immediate, at the current
// reference price.
func NewMeanReversion(fetcher sigengine.CandleFetcher, cfg MeanReversionConfig) func(ctx context.Context, symbol string) (*sigengine.Signal, error) {
	return func(ctx context.Context, symbol string) (*sigengine.Signal, error) {
		candles, err := fetcher.GetCandlesNext(ctx, symbol, sigengine.Interval1m, cfg.LookbackCandles)
		if err != nil {
			return nil, fmt.Errorf("mean-reversion: fetch candles: %w", err)
		}
		if len(candles) < cfg.RSIPeriod+2 {
			return nil, nil
		}

		rsi := rsiSeries(candles, cfg.RSIPeriod)
		n := len(rsi)
		if n < 2 {
			return nil, nil
		}

		prev, curr := rsi[n-2], rsi[n-1]
		last := candles[len(candles)-1].Close

		switch {
		case prev <= cfg.RSIOversold && curr > cfg.RSIOversold:
			return reversionLong(last, cfg), nil
		case prev >= cfg.RSIOverbought && curr < cfg.RSIOverbought:
			return reversionShort(last, cfg), nil
		default:
			return nil, nil
		}
	}
}

func reversionLong(price float64, cfg MeanReversionConfig) *sigengine.Signal {
	return &sigengine.Signal{
		Position:            sigengine.PositionLong,
		PriceTakeProfit:     price * (1 + cfg.TakeProfitPercent/100),
		PriceStopLoss:       price * (1 - cfg.StopLossPercent/100),
		MinuteEstimatedTime: cfg.MinuteEstimatedTime,
		Note:                "RSI crossed back up through oversold",
	}
}

func reversionShort(price float64, cfg MeanReversionConfig) *sigengine.Signal {
	return &sigengine.Signal{
		Position:            sigengine.PositionShort,
		PriceTakeProfit:     price * (1 - cfg.TakeProfitPercent/100),
		PriceStopLoss:       price * (1 + cfg.StopLossPercent/100),
		MinuteEstimatedTime: cfg.MinuteEstimatedTime,
		Note:                "RSI crossed back down through overbought",
	}
}

func rsiSeries(candles []sigengine.Candle, period int) []float64 {
	in := make(chan float64, len(candles))
	for _, c := range candles {
		in <- c.Close
	}
	close(in)

	out := momentum.NewRsiWithPeriod[float64](period).Compute(in)
	var values []float64
	for v := range out {
		values = append(values, v)
	}
	return values
}
