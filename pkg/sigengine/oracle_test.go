package sigengine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher replays one slice of candles per call, clamped to the
// last entry once exhausted, so a test can script "anomalous window, then
// a clean one" across successive retries.
type scriptedFetcher struct {
	calls     int
	responses [][]Candle
}

func (f *scriptedFetcher) GetCandles(_ context.Context, _ string, _ Interval, _ time.Time, limit int) ([]Candle, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	candles := f.responses[idx]
	if limit > 0 && limit < len(candles) {
		candles = candles[:limit]
	}
	return candles, nil
}

func (f *scriptedFetcher) GetCandlesNext(ctx context.Context, symbol string, iv Interval, limit int) ([]Candle, error) {
	return f.GetCandles(ctx, symbol, iv, time.UnixMilli(0), limit)
}

func oldCandle(now time.Time, agoMinutes int, price, volume float64) Candle {
	ts := now.Add(-time.Duration(agoMinutes) * time.Minute)
	return Candle{TimestampMS: ts.UnixMilli(), Open: price, High: price, Low: price, Close: price, Volume: volume}
}

func TestPriceOracleVolumeWeightedAverage(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{responses: [][]Candle{{
		oldCandle(now, 3, 100, 1),
		oldCandle(now, 2, 200, 1),
		oldCandle(now, 1, 100, 2),
	}}}
	oracle := NewPriceOracle(fetcher, OracleConfig{
		AvgPriceCandlesCount:        3,
		MinCandlesForMedian:         1,
		PriceAnomalyThresholdFactor: 10,
	}, zerolog.Nop())

	price, err := oracle.Price(context.Background(), "BTCUSDT", now)
	require.NoError(t, err)
	assert.InDelta(t, 125.0, price, 1e-9)
}

func TestPriceOracleFallsBackToArithmeticMeanWhenVolumeIsZero(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{responses: [][]Candle{{
		oldCandle(now, 3, 100, 0),
		oldCandle(now, 2, 200, 0),
		oldCandle(now, 1, 300, 0),
	}}}
	oracle := NewPriceOracle(fetcher, OracleConfig{
		AvgPriceCandlesCount:        3,
		MinCandlesForMedian:         1,
		PriceAnomalyThresholdFactor: 10,
	}, zerolog.Nop())

	price, err := oracle.Price(context.Background(), "BTCUSDT", now)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, price, 1e-9)
}

func TestPriceOracleInsufficientDataIsRecoverable(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{responses: [][]Candle{{
		oldCandle(now, 1, 100, 1),
	}}}
	oracle := NewPriceOracle(fetcher, OracleConfig{
		AvgPriceCandlesCount:        3,
		MinCandlesForMedian:         3,
		PriceAnomalyThresholdFactor: 10,
	}, zerolog.Nop())

	_, err := oracle.Price(context.Background(), "BTCUSDT", now)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPriceOracleRetriesPastAnAnomalousWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{responses: [][]Candle{
		{
			oldCandle(now, 3, 100, 1),
			oldCandle(now, 2, 100, 1),
			oldCandle(now, 1, 1000, 1), // 10x the window median, trips the anomaly filter
		},
		{
			oldCandle(now, 3, 100, 1),
			oldCandle(now, 2, 105, 1),
			oldCandle(now, 1, 110, 1),
		},
	}}
	oracle := NewPriceOracle(fetcher, OracleConfig{
		AvgPriceCandlesCount:        3,
		MinCandlesForMedian:         1,
		PriceAnomalyThresholdFactor: 2,
		RetryCount:                  1,
		RetryDelay:                  time.Millisecond,
	}, zerolog.Nop())

	price, err := oracle.Price(context.Background(), "BTCUSDT", now)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
	assert.InDelta(t, 105.0, price, 1e-9)
}

func TestPriceOracleExhaustsRetriesOnPersistentAnomaly(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{responses: [][]Candle{{
		oldCandle(now, 3, 100, 1),
		oldCandle(now, 2, 100, 1),
		oldCandle(now, 1, 1000, 1),
	}}}
	oracle := NewPriceOracle(fetcher, OracleConfig{
		AvgPriceCandlesCount:        3,
		MinCandlesForMedian:         1,
		PriceAnomalyThresholdFactor: 2,
		RetryCount:                  2,
		RetryDelay:                  time.Millisecond,
	}, zerolog.Nop())

	_, err := oracle.Price(context.Background(), "BTCUSDT", now)
	require.Error(t, err)
	assert.Equal(t, 3, fetcher.calls)
}
