package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigtrader/enginecore/internal/exchange"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// risingThenFallingCandles builds a one-minute series that trends up for
// the first half and down for the second half; with fast/slow periods 3/8
// the fast EMA crosses below the slow one at index 43, four candles after
// the turn.
func risingThenFallingCandles(start time.Time, n int) []sigengine.Candle {
	candles := make([]sigengine.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i < n/2 {
			price += 1
		} else {
			price -= 1.5
		}
		ts := start.Add(time.Duration(i) * time.Minute)
		candles = append(candles, sigengine.Candle{
			TimestampMS: ts.UnixMilli(),
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      1,
		})
	}
	return candles
}

func TestTrendFollowEmitsOnCrossover(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := exchange.NewMockCandleFetcher()
	fetcher.Seed("BTCUSDT", risingThenFallingCandles(start, 80))

	cfg := DefaultTrendFollowConfig()
	cfg.FastPeriod = 3
	cfg.SlowPeriod = 8
	// The window ends on the crossover candle (index 43).
	cfg.LookbackCandles = 44
	getSignal := NewTrendFollow(fetcher, cfg)

	sig, err := getSignal(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Contains(t, []sigengine.Position{sigengine.PositionLong, sigengine.PositionShort}, sig.Position)
	assert.Greater(t, sig.MinuteEstimatedTime, 0)
}

func TestTrendFollowInsufficientHistoryReturnsNil(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := exchange.NewMockCandleFetcher()
	fetcher.Seed("BTCUSDT", risingThenFallingCandles(start, 5))

	cfg := DefaultTrendFollowConfig()
	getSignal := NewTrendFollow(fetcher, cfg)

	sig, err := getSignal(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, sig)
}
