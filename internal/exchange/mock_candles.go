package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// MockCandleFetcher is an in-memory sigengine.CandleFetcher realization
// for tests and offline backtests: candles are loaded up front (from a
// fixture, a CSV import, or a prior live run) and served back by symbol
// without touching the network.
type MockCandleFetcher struct {
	mu      sync.RWMutex
	candles map[string][]sigengine.Candle // symbol -> chronologically ordered
	cursor  map[string]int                // symbol -> next GetCandlesNext offset
}

// NewMockCandleFetcher builds an empty fetcher; load data with Seed.
func NewMockCandleFetcher() *MockCandleFetcher {
	return &MockCandleFetcher{
		candles: make(map[string][]sigengine.Candle),
		cursor:  make(map[string]int),
	}
}

// Seed replaces symbol's candle series. Candles are sorted by timestamp
// regardless of input order.
func (f *MockCandleFetcher) Seed(symbol string, candles []sigengine.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted := append([]sigengine.Candle(nil), candles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMS < sorted[j].TimestampMS })
	f.candles[symbol] = sorted
	f.cursor[symbol] = 0
}

// GetCandles returns up to limit candles for symbol at or after since.
func (f *MockCandleFetcher) GetCandles(_ context.Context, symbol string, _ sigengine.Interval, since time.Time, limit int) ([]sigengine.Candle, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	series, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("mock fetcher: no candles seeded for %s", symbol)
	}

	sinceMS := since.UnixMilli()
	start := sort.Search(len(series), func(i int) bool { return series[i].TimestampMS >= sinceMS })
	end := start + limit
	if end > len(series) {
		end = len(series)
	}
	return append([]sigengine.Candle(nil), series[start:end]...), nil
}

// GetCandlesNext returns the next limit candles for symbol, advancing an
// internal per-symbol cursor — the access pattern the bundled strategies
// use to read successive lookback windows from a finite historical series.
func (f *MockCandleFetcher) GetCandlesNext(_ context.Context, symbol string, _ sigengine.Interval, limit int) ([]sigengine.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	series, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("mock fetcher: no candles seeded for %s", symbol)
	}

	start := f.cursor[symbol]
	if start >= len(series) {
		return nil, nil
	}
	end := start + limit
	if end > len(series) {
		end = len(series)
	}
	f.cursor[symbol] = end
	return append([]sigengine.Candle(nil), series[start:end]...), nil
}
