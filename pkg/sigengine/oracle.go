package sigengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// OracleConfig controls PriceOracle windowing, anomaly detection, and
// retry behavior (the CC_GET_CANDLES_*/CC_AVG_PRICE_CANDLES_COUNT options
// of spec.md §6).
type OracleConfig struct {
	AvgPriceCandlesCount        int
	MinCandlesForMedian         int
	PriceAnomalyThresholdFactor float64
	RetryCount                  int
	RetryDelay                  time.Duration
}

// ErrInsufficientData is returned when fewer than MinCandlesForMedian
// candles are available; the caller (the engine) should skip the tick.
var ErrInsufficientData = fmt.Errorf("insufficient candle data for price oracle")

// PriceOracle produces a volume-weighted reference price from the last
// N one-minute candles strictly older than now (spec.md §4.1).
type PriceOracle struct {
	fetcher CandleFetcher
	cfg     OracleConfig
	log     zerolog.Logger
}

// NewPriceOracle builds an oracle over a CandleFetcher.
func NewPriceOracle(fetcher CandleFetcher, cfg OracleConfig, log zerolog.Logger) *PriceOracle {
	return &PriceOracle{fetcher: fetcher, cfg: cfg, log: log}
}

// Price returns the reference price for symbol as of now. It retries on
// anomalous windows per the configured policy and returns
// ErrInsufficientData (never a fatal error) when too little history
// exists — the engine treats that as a skipped tick, per spec.md §4.1.
func (o *PriceOracle) Price(ctx context.Context, symbol string, now time.Time) (float64, error) {
	attempts := o.cfg.RetryCount + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(o.cfg.RetryDelay):
			}
		}

		since := now.Add(-time.Duration(o.cfg.AvgPriceCandlesCount) * time.Minute)
		candles, err := o.fetcher.GetCandles(ctx, symbol, Interval1m, since, o.cfg.AvgPriceCandlesCount)
		if err != nil {
			lastErr = &ExchangeTransientError{Symbol: symbol, Err: err}
			o.log.Warn().Err(err).Int("attempt", attempt+1).Str("symbol", symbol).Msg("candle fetch failed, retrying")
			continue
		}

		candles = olderThan(candles, now)
		if len(candles) < o.cfg.MinCandlesForMedian {
			return 0, ErrInsufficientData
		}

		if o.isAnomalous(candles) {
			lastErr = &ExchangeTransientError{Symbol: symbol, Err: fmt.Errorf("price anomaly detected in candle window")}
			o.log.Warn().Int("attempt", attempt+1).Str("symbol", symbol).Msg("anomalous candle window, retrying")
			continue
		}

		return vwap(candles), nil
	}

	return 0, lastErr
}

func olderThan(candles []Candle, now time.Time) []Candle {
	nowMS := now.UnixMilli()
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.TimestampMS < nowMS {
			out = append(out, c)
		}
	}
	return out
}

func vwap(candles []Candle) float64 {
	var sumPV, sumV float64
	for _, c := range candles {
		sumPV += c.Close * c.Volume
		sumV += c.Volume
	}
	if sumV > 0 {
		return sumPV / sumV
	}
	var sumClose float64
	for _, c := range candles {
		sumClose += c.Close
	}
	return sumClose / float64(len(candles))
}

func (o *PriceOracle) isAnomalous(candles []Candle) bool {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	median := medianOf(closes)
	if median == 0 {
		return false
	}
	for _, c := range closes {
		ratio := c / median
		if ratio > o.cfg.PriceAnomalyThresholdFactor || ratio < 1/o.cfg.PriceAnomalyThresholdFactor {
			return true
		}
	}
	return false
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
