package sigengine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BacktestDriverConfig carries the candle interval fast-forward fetches
// use. CandlesPerFetch is not read by the driver: each fast-forward fetch
// asks for the signal's estimated lifetime in candles, plus one.
type BacktestDriverConfig struct {
	Interval        Interval
	CandlesPerFetch int
}

// BacktestDriver walks a Frame's timestamps against one SignalEngine,
// calling Tick at every step and, whenever Tick reports an opened signal,
// immediately fast-forwarding through Backtest over the historical
// candles spanning the signal's estimated lifetime (spec.md §4.7).
type BacktestDriver struct {
	engine  *SignalEngine
	symbol  string
	fetcher CandleFetcher
	frame   Frame
	cfg     BacktestDriverConfig
	log     zerolog.Logger
}

// NewBacktestDriver builds a driver over one engine and one historical frame.
func NewBacktestDriver(engine *SignalEngine, symbol string, fetcher CandleFetcher, frame Frame, cfg BacktestDriverConfig, log zerolog.Logger) *BacktestDriver {
	return &BacktestDriver{engine: engine, symbol: symbol, fetcher: fetcher, frame: frame, cfg: cfg, log: log}
}

// Run walks the frame to completion (or until ctx is cancelled), emitting
// every event on a buffered channel the caller drains. The channel is
// closed on exit; a final EventDone with Backtest=true is sent before
// close unless ctx was cancelled first.
func (d *BacktestDriver) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)

		timestamps := d.frame.Timestamps()
		skipUntilMS := int64(0)

		for _, ts := range timestamps {
			if err := ctx.Err(); err != nil {
				return
			}

			tsMS := ts.UnixMilli()
			if tsMS <= skipUntilMS {
				continue
			}

			ev, err := d.engine.Tick(ctx, ts)
			if err != nil {
				out <- Event{Kind: EventError, StrategyName: "", Symbol: d.symbol, Reason: err.Error(), Err: err}
				out <- Event{Kind: EventDone, Symbol: d.symbol, Backtest: true}
				return
			}
			out <- ev

			if ev.Kind != EventOpened {
				continue
			}

			horizon := time.Duration(ev.Signal.MinuteEstimatedTime) * time.Minute
			candles, ferr := d.fetcher.GetCandles(ctx, d.symbol, d.cfg.Interval, ts, int(horizon/d.cfg.Interval.Duration())+1)
			if ferr != nil {
				d.log.Warn().Err(ferr).Str("symbol", d.symbol).Msg("backtest candle fetch failed, skipping fast-forward")
				continue
			}

			closeEv, berr := d.engine.Backtest(ctx, candles)
			if berr != nil {
				out <- Event{Kind: EventError, Symbol: d.symbol, Reason: berr.Error(), Err: berr}
				out <- Event{Kind: EventDone, Symbol: d.symbol, Backtest: true}
				return
			}
			out <- closeEv

			// Only timestamps up to the actual close may be suppressed
			// (spec.md §4.7 step 2). A position that closes early within
			// the fetched horizon leaves every later timestamp open for
			// the next tick to re-evaluate; only an unresolved fast-
			// forward (still opened/active at the end of the fetch) skips
			// through the whole horizon, since nothing in it produced an
			// outcome to resume from.
			switch {
			case closeEv.Kind == EventClosed:
				skipUntilMS = closeEv.TimestampMS
			case len(candles) > 0:
				skipUntilMS = candles[len(candles)-1].TimestampMS
			}
		}

		out <- Event{Kind: EventDone, Symbol: d.symbol, Backtest: true}
	}()

	return out
}
