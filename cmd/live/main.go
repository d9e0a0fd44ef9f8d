// Live Driver CLI
// Runs one strategy against one symbol as an infinite tick loop against
// live exchange candles, until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/sigtrader/enginecore/internal/config"
	"github.com/sigtrader/enginecore/internal/exchange"
	"github.com/sigtrader/enginecore/internal/fanout"
	"github.com/sigtrader/enginecore/internal/risk"
	"github.com/sigtrader/enginecore/internal/strategies"
	"github.com/sigtrader/enginecore/internal/wiring"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

var (
	configPath   = flag.String("config", "", "Path to config YAML (optional; CC_* env vars always apply)")
	symbol       = flag.String("symbol", "", "Symbol to trade (required)")
	strategyName = flag.String("strategy", "", "Registered strategy name (required)")
	testnet      = flag.Bool("testnet", true, "Use Binance testnet endpoints")
	natsURL      = flag.String("fanout-nats-url", "", "Optional NATS URL to republish events to (disabled if empty)")
	verbose      = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	config.InitLogger(level, "console")

	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol is required")
		flag.Usage()
		os.Exit(1)
	}
	if *strategyName == "" {
		fmt.Fprintln(os.Stderr, "Error: -strategy is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	breakers := risk.NewCircuitBreakerManagerWithSettings(nil, nil)
	fetcher := exchange.NewBinanceCandleFetcher(exchange.BinanceConfig{Testnet: *testnet}, breakers, config.NewLogger("binance"))

	strategy := strategies.Build(*strategyName, fetcher)
	if strategy == nil {
		log.Fatal().Str("strategy", *strategyName).Strs("available", strategies.Names()).Msg("unknown strategy")
	}

	store := wiring.PersistenceStore(cfg)
	gate := risk.NewGate("default", store, breakers, []sigengine.RiskPredicate{
		risk.MaxConcurrentPositions(3),
		risk.SymbolExclusivity(),
	}, config.NewLogger("risk"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gate.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load risk gate state")
	}

	engine := wiring.BuildEngine(cfg, strategy, *symbol, store, gate, fetcher)
	driver := sigengine.NewLiveDriver(engine, *symbol, sigengine.LiveDriverConfig{TickTTL: cfg.Strategy.TickTTL()}, config.NewSlotLogger(*strategyName, *symbol))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	events := driver.Run(ctx)
	if *natsURL != "" {
		pub, err := fanout.Connect(fanout.Config{URL: *natsURL}, config.NewLogger("fanout"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect fanout publisher")
		}
		defer pub.Close()
		events = pub.Tap(events)
	}

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal, stopping after the open position clears")
		driver.Stop()
	}()

	for ev := range events {
		logEvent(*symbol, ev)
	}

	log.Info().Msg("live driver stopped")
}

func logEvent(symbol string, ev sigengine.Event) {
	entry := log.Info().Str("symbol", symbol).Str("kind", string(ev.Kind))
	if ev.PNL != nil {
		entry = entry.Float64("pnl_percent", ev.PNL.PNLPercent)
	}
	if ev.Reason != "" {
		entry = entry.Str("reason", ev.Reason)
	}
	entry.Msg("live event")
}
