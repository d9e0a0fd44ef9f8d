package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"github.com/sigtrader/enginecore/internal/risk"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// BinanceConfig configures a BinanceCandleFetcher.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// intervalString maps a sigengine.Interval onto Binance's kline interval
// strings, which happen to already use the same vocabulary.
func intervalString(iv sigengine.Interval) string {
	return string(iv)
}

// BinanceCandleFetcher is the live realization of sigengine.CandleFetcher,
// wrapping go-binance/v2's klines endpoint. Binance API keys are only
// required for authenticated endpoints; klines are public, so an empty
// key pair works against both testnet and mainnet for read-only fetches.
type BinanceCandleFetcher struct {
	client   *binance.Client
	retry    RetryConfig
	breakers *risk.CircuitBreakerManager
	log      zerolog.Logger
}

// NewBinanceCandleFetcher builds a fetcher over a go-binance/v2 client.
// breakers is the process-wide circuit breaker manager (also used by the
// risk gate's persistence writes); every klines call trips the same
// "exchange" breaker tracked in its Prometheus metrics.
func NewBinanceCandleFetcher(cfg BinanceConfig, breakers *risk.CircuitBreakerManager, log zerolog.Logger) *BinanceCandleFetcher {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	return &BinanceCandleFetcher{client: client, retry: DefaultRetryConfig(), breakers: breakers, log: log}
}

// GetCandles returns up to limit candles for symbol at interval, starting
// at since.
func (f *BinanceCandleFetcher) GetCandles(ctx context.Context, symbol string, interval sigengine.Interval, since time.Time, limit int) ([]sigengine.Candle, error) {
	out, err := f.fetch(ctx, func() ([]*binance.Kline, error) {
		return f.client.NewKlinesService().
			Symbol(symbol).
			Interval(intervalString(interval)).
			StartTime(since.UnixMilli()).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("binance: fetch candles for %s: %w", symbol, err)
	}
	return out, nil
}

// GetCandlesNext returns the most recent limit closed candles for symbol.
func (f *BinanceCandleFetcher) GetCandlesNext(ctx context.Context, symbol string, interval sigengine.Interval, limit int) ([]sigengine.Candle, error) {
	out, err := f.fetch(ctx, func() ([]*binance.Kline, error) {
		return f.client.NewKlinesService().
			Symbol(symbol).
			Interval(intervalString(interval)).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("binance: fetch next candles for %s: %w", symbol, err)
	}
	return out, nil
}

// fetch runs a klines call through the retry loop and the exchange circuit
// breaker together: WithRetry absorbs transient per-attempt failures, and
// the breaker sees the outcome of the whole retrying operation, same as
// risk.Gate treats its persistence writes.
func (f *BinanceCandleFetcher) fetch(ctx context.Context, call func() ([]*binance.Kline, error)) ([]sigengine.Candle, error) {
	var out []sigengine.Candle

	_, err := f.breakers.Exchange().Execute(func() (interface{}, error) {
		return nil, WithRetry(ctx, f.retry, func() error {
			klines, err := call()
			if err != nil {
				return err
			}
			out, err = klinesToCandles(klines)
			return err
		})
	})
	if err != nil {
		f.breakers.Metrics().RecordRequest("exchange", false)
		return nil, err
	}
	f.breakers.Metrics().RecordRequest("exchange", true)
	return out, nil
}

func klinesToCandles(klines []*binance.Kline) ([]sigengine.Candle, error) {
	out := make([]sigengine.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func candleFromKline(k *binance.Kline) (sigengine.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return sigengine.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return sigengine.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return sigengine.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return sigengine.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return sigengine.Candle{}, fmt.Errorf("parse volume: %w", err)
	}

	return sigengine.Candle{
		TimestampMS: k.OpenTime,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
	}, nil
}
