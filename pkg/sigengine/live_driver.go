package sigengine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LiveDriverConfig holds the live tick cadence (CC_STRATEGY_TICK_TTL_MS).
type LiveDriverConfig struct {
	TickTTL time.Duration
}

// LiveDriver drives one SignalEngine forward with an infinite tick loop
// at TickTTL cadence, until ctx is cancelled or Stop is called — at which
// point it keeps ticking (without generating new signals, since Stop
// propagates to the engine) until the slot reaches idle, then exits
// (spec.md §4.8's graceful-stop contract).
type LiveDriver struct {
	engine *SignalEngine
	symbol string
	cfg    LiveDriverConfig
	log    zerolog.Logger
}

// NewLiveDriver builds a driver over one engine.
func NewLiveDriver(engine *SignalEngine, symbol string, cfg LiveDriverConfig, log zerolog.Logger) *LiveDriver {
	return &LiveDriver{engine: engine, symbol: symbol, cfg: cfg, log: log}
}

// Stop requests a graceful shutdown: no further signals are generated,
// but an already-open position is left to run to its natural close.
func (d *LiveDriver) Stop() {
	d.engine.Stop()
}

// Run ticks the engine every TickTTL, emitting every event on a buffered
// channel the caller drains. The channel is closed on exit; a final
// EventDone with Backtest=false precedes close whenever the loop exits
// cleanly (ctx cancellation or a completed graceful stop).
func (d *LiveDriver) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)

		ticker := time.NewTicker(d.cfg.TickTTL)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				out <- Event{Kind: EventDone, Symbol: d.symbol, Backtest: false}
				return
			case now := <-ticker.C:
				ev, err := d.engine.Tick(ctx, now)
				if err != nil {
					out <- Event{Kind: EventError, Symbol: d.symbol, Reason: err.Error(), Err: err}
					return
				}
				out <- ev

				if d.engine.Idle() && d.stopRequested() {
					out <- Event{Kind: EventDone, Symbol: d.symbol, Backtest: false}
					return
				}
			}
		}
	}()

	return out
}

func (d *LiveDriver) stopRequested() bool {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()
	return d.engine.stopped
}
