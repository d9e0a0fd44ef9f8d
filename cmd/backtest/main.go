// Backtest Runner CLI
// Walks one or more strategies across a historical candle frame and
// reports signal outcomes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sigtrader/enginecore/internal/config"
	"github.com/sigtrader/enginecore/internal/exchange"
	"github.com/sigtrader/enginecore/internal/risk"
	"github.com/sigtrader/enginecore/internal/strategies"
	"github.com/sigtrader/enginecore/internal/wiring"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

var (
	configPath   = flag.String("config", "", "Path to config YAML (optional; CC_* env vars always apply)")
	symbols      = flag.String("symbols", "BTCUSDT", "Comma-separated symbols to backtest")
	strategyName = flag.String("strategy", "", "Registered strategy name (required)")
	dataSource   = flag.String("data-source", "mock", "Candle source: mock or binance")
	startDate    = flag.String("start", "", "Frame start date (YYYY-MM-DD, required)")
	endDate      = flag.String("end", "", "Frame end date (YYYY-MM-DD, required)")
	interval     = flag.String("interval", "1m", "Candle interval")
	verbose      = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	config.InitLogger(level, "console")

	if *strategyName == "" {
		fmt.Fprintln(os.Stderr, "Error: -strategy is required")
		flag.Usage()
		os.Exit(1)
	}
	if *startDate == "" || *endDate == "" {
		fmt.Fprintln(os.Stderr, "Error: -start and -end are required (YYYY-MM-DD)")
		flag.Usage()
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -start date")
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -end date")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	symbolList := strings.Split(*symbols, ",")
	for i := range symbolList {
		symbolList[i] = strings.TrimSpace(symbolList[i])
	}

	breakers := risk.NewCircuitBreakerManagerWithSettings(nil, nil)

	var fetcher sigengine.CandleFetcher
	switch *dataSource {
	case "mock":
		fetcher = newSeededMockFetcher(symbolList, start, end.Add(24*time.Hour))
	case "binance":
		fetcher = exchange.NewBinanceCandleFetcher(exchange.BinanceConfig{Testnet: true}, breakers, config.NewLogger("binance"))
	default:
		log.Fatal().Str("data-source", *dataSource).Msg("unknown data source")
	}

	strategy := strategies.Build(*strategyName, fetcher)
	if strategy == nil {
		log.Fatal().Str("strategy", *strategyName).Strs("available", strategies.Names()).Msg("unknown strategy")
	}

	store := wiring.PersistenceStore(cfg)
	gate := risk.NewGate("default", store, breakers, []sigengine.RiskPredicate{
		risk.MaxConcurrentPositions(3),
		risk.SymbolExclusivity(),
	}, config.NewLogger("risk"))
	if err := gate.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to load risk gate state")
	}

	iv := sigengine.Interval(*interval)
	frame := sigengine.Frame{Name: *strategyName, Interval: iv, StartDate: start, EndDate: end}

	var exitCode int
	for _, symbol := range symbolList {
		engine := wiring.BuildEngine(cfg, strategy, symbol, store, gate, fetcher)
		driver := sigengine.NewBacktestDriver(engine, symbol, fetcher, frame,
			sigengine.BacktestDriverConfig{Interval: iv, CandlesPerFetch: cfg.Oracle.AvgPriceCandlesCount * 4},
			config.NewSlotLogger(*strategyName, symbol))

		for ev := range driver.Run(context.Background()) {
			logEvent(symbol, ev)
			if ev.Kind == sigengine.EventError {
				exitCode = 1
			}
		}
	}

	os.Exit(exitCode)
}

func logEvent(symbol string, ev sigengine.Event) {
	entry := log.Info().Str("symbol", symbol).Str("kind", string(ev.Kind))
	if ev.PNL != nil {
		entry = entry.Float64("pnl_percent", ev.PNL.PNLPercent)
	}
	if ev.Reason != "" {
		entry = entry.Str("reason", ev.Reason)
	}
	entry.Msg("backtest event")
}
