package main

import (
	"time"

	"github.com/sigtrader/enginecore/internal/exchange"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// newSeededMockFetcher builds a MockCandleFetcher seeded with synthetic
// one-minute candles per symbol, for -data-source=mock runs that don't
// depend on network access.
func newSeededMockFetcher(symbols []string, start, end time.Time) *exchange.MockCandleFetcher {
	fetcher := exchange.NewMockCandleFetcher()
	for _, symbol := range symbols {
		fetcher.Seed(symbol, syntheticCandles(start, end))
	}
	return fetcher
}

// syntheticCandles generates one candle per minute in [start, end) that
// walks a small deterministic up/down price path, enough to exercise
// both the trend-follow and mean-reversion strategies without external
// data.
func syntheticCandles(start, end time.Time) []sigengine.Candle {
	var candles []sigengine.Candle
	price := 100.0
	for t := start; t.Before(end); t = t.Add(time.Minute) {
		open := price
		price += driftFor(t, start)
		high, low := open, open
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		candles = append(candles, sigengine.Candle{
			TimestampMS: t.UnixMilli(),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       price,
			Volume:      1,
		})
	}
	return candles
}

// driftFor derives a small deterministic step from elapsed minutes so the
// same [start, end) range always produces the same series.
func driftFor(t, start time.Time) float64 {
	minutes := t.Sub(start).Minutes()
	cycle := int64(minutes) % 240
	if cycle < 120 {
		return 0.05
	}
	return -0.05
}
