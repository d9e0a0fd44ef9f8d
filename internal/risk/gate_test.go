package risk

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigtrader/enginecore/internal/persistence"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

func newTestGate(t *testing.T, predicates ...sigengine.RiskPredicate) (*Gate, persistence.Store) {
	t.Helper()
	store := persistence.NewFileStore(t.TempDir(), zerolog.Nop())
	gate := NewGate("default", store, NewPassthroughCircuitBreakerManager(), predicates, zerolog.Nop())
	return gate, store
}

func sampleRecord(symbol string) sigengine.SignalRecord {
	open := 100.0
	return sigengine.SignalRecord{
		ID:              "sig-1",
		Symbol:          symbol,
		Position:        sigengine.PositionLong,
		PriceOpen:       &open,
		PriceTakeProfit: 102,
		PriceStopLoss:   99,
		PendingAt:       1000,
	}
}

func TestGateCheckAllowsWhenNoPredicates(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t)

	err := gate.Check(ctx, sigengine.RiskCheckContext{Symbol: "BTCUSDT", StrategyName: "trend"})
	assert.NoError(t, err)
}

func TestGateCheckRejectsOnFirstFailingPredicate(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, MaxConcurrentPositions(0))

	err := gate.Check(ctx, sigengine.RiskCheckContext{Symbol: "BTCUSDT", StrategyName: "trend"})
	require.Error(t, err)
	var rejection *sigengine.RiskRejectionError
	assert.ErrorAs(t, err, &rejection)
}

func TestGateAddPersistsAndCheckSeesActivePositions(t *testing.T) {
	ctx := context.Background()
	gate, store := newTestGate(t, SymbolExclusivity())

	require.NoError(t, gate.Add(ctx, sampleRecord("BTCUSDT"), "trend", "binance"))

	err := gate.Check(ctx, sigengine.RiskCheckContext{
		Symbol:       "BTCUSDT",
		StrategyName: "mean-reversion",
		Proposed:     sampleRecord("BTCUSDT"),
	})
	require.Error(t, err)

	data, rerr := store.Read(ctx, namespace("default"), positionsEntityID)
	require.NoError(t, rerr)
	assert.Contains(t, string(data), "BTCUSDT")
}

func TestGateDropRemovesPosition(t *testing.T) {
	ctx := context.Background()
	gate, _ := newTestGate(t, SymbolExclusivity())

	require.NoError(t, gate.Add(ctx, sampleRecord("BTCUSDT"), "trend", "binance"))
	require.NoError(t, gate.Drop(ctx, "trend", "BTCUSDT"))

	err := gate.Check(ctx, sigengine.RiskCheckContext{
		Symbol:       "BTCUSDT",
		StrategyName: "mean-reversion",
		Proposed:     sampleRecord("BTCUSDT"),
	})
	assert.NoError(t, err)
}

func TestGateLoadRehydratesFromPersistence(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewFileStore(t.TempDir(), zerolog.Nop())
	breakers := NewPassthroughCircuitBreakerManager()

	first := NewGate("default", store, breakers, nil, zerolog.Nop())
	require.NoError(t, first.Add(ctx, sampleRecord("ETHUSDT"), "trend", "binance"))

	second := NewGate("default", store, breakers, []sigengine.RiskPredicate{SymbolExclusivity()}, zerolog.Nop())
	require.NoError(t, second.Load(ctx))

	err := second.Check(ctx, sigengine.RiskCheckContext{
		Symbol:       "ETHUSDT",
		StrategyName: "mean-reversion",
		Proposed:     sampleRecord("ETHUSDT"),
	})
	assert.Error(t, err)
}
