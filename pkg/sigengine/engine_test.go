package sigengine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigtrader/enginecore/internal/persistence"
)

func TestEngineImmediateEntryOpensThenActivates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fixedFetcher{candles: []Candle{
		{TimestampMS: start.Add(-time.Minute).UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
	}}
	strategy := &Strategy{
		Name:     "trend",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*Signal, error) {
			return &Signal{Position: PositionLong, PriceTakeProfit: 110, PriceStopLoss: 90, MinuteEstimatedTime: 60}, nil
		},
	}
	engine := testEngine(t, strategy, fetcher)

	ev, err := engine.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, EventOpened, ev.Kind)

	ev, err = engine.Tick(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, EventActive, ev.Kind)
}

func TestEngineScheduledCancelsOnStopBeforeActivation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fixedFetcher{candles: []Candle{
		{TimestampMS: start.Add(-time.Minute).UnixMilli(), Open: 80, High: 80, Low: 80, Close: 80, Volume: 1},
	}}
	open := 90.0
	strategy := &Strategy{
		Name:     "trend",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*Signal, error) {
			return &Signal{Position: PositionLong, PriceOpen: &open, PriceTakeProfit: 110, PriceStopLoss: 85, MinuteEstimatedTime: 60}, nil
		},
	}
	engine := testEngine(t, strategy, fetcher)

	ev, err := engine.Tick(context.Background(), start)
	require.NoError(t, err)
	require.Equal(t, EventScheduled, ev.Kind)

	ev, err = engine.Tick(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, ev.Kind)
	assert.Equal(t, CancelStopLossBeforeActivation, ev.CancelReason)
}

func TestEngineScheduledTimesOutAfterAwaitWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fixedFetcher{candles: []Candle{
		{TimestampMS: start.Add(-time.Minute).UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
		{TimestampMS: start.UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
		{TimestampMS: start.Add(2 * time.Hour).UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
	}}
	open := 90.0
	strategy := &Strategy{
		Name:     "trend",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*Signal, error) {
			return &Signal{Position: PositionLong, PriceOpen: &open, PriceTakeProfit: 110, PriceStopLoss: 85, MinuteEstimatedTime: 60}, nil
		},
	}
	engine := testEngine(t, strategy, fetcher)

	ev, err := engine.Tick(context.Background(), start)
	require.NoError(t, err)
	require.Equal(t, EventScheduled, ev.Kind)

	ev, err = engine.Tick(context.Background(), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, ev.Kind)
	assert.Equal(t, CancelScheduleTimeout, ev.CancelReason)
}

func TestActiveExitOutcomeStopLossWinsTieBreak(t *testing.T) {
	rec := &SignalRecord{Position: PositionLong, PriceTakeProfit: 110, PriceStopLoss: 90}
	reason, hit := activeExitOutcome(rec, 89, 111)
	assert.True(t, hit)
	assert.Equal(t, CloseStopLoss, reason)
}

func TestScheduledOutcomeChecksStopBeforeEntry(t *testing.T) {
	open := 100.0
	rec := &SignalRecord{Position: PositionLong, PriceOpen: &open, PriceTakeProfit: 120, PriceStopLoss: 90}
	outcome := scheduledOutcome(rec, 85, 105)
	assert.Equal(t, outcomeCancel, outcome)
}

func TestEngineCrashRecoveryResumesActiveState(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fixedFetcher{candles: []Candle{
		{TimestampMS: start.Add(-time.Minute).UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
	}}
	strategy := &Strategy{
		Name:     "trend",
		Interval: time.Minute,
		GetSignal: func(ctx context.Context, symbol string) (*Signal, error) {
			return &Signal{Position: PositionLong, PriceTakeProfit: 110, PriceStopLoss: 90, MinuteEstimatedTime: 60}, nil
		},
	}

	dir := t.TempDir()
	store := persistence.NewFileStore(dir, zerolog.Nop())

	build := func() *SignalEngine {
		validator := NewSignalValidator(ValidatorConfig{
			MinTakeProfitDistancePercent: 0.1,
			MinStopLossDistancePercent:  0.1,
			MaxStopLossDistancePercent:  50,
			MaxSignalLifetimeMinutes:    1440,
		})
		oracle := NewPriceOracle(fetcher, OracleConfig{
			AvgPriceCandlesCount: 3, MinCandlesForMedian: 1, PriceAnomalyThresholdFactor: 100, RetryCount: 0, RetryDelay: time.Millisecond,
		}, zerolog.Nop())
		pnl := NewPNLCalculator(PNLConfig{})
		bus := NewEventBus()
		cfg := EngineConfig{ScheduleAwait: time.Hour, MaxSignalGeneration: time.Second}
		return NewSignalEngine(strategy, "BTCUSDT", "binance", store, validator, noopRiskGate{}, oracle, pnl, bus, cfg, zerolog.Nop())
	}

	first := build()
	ev, err := first.Tick(context.Background(), start)
	require.NoError(t, err)
	require.Equal(t, EventOpened, ev.Kind)

	second := build()
	ev, err = second.Tick(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, EventActive, ev.Kind)
}
