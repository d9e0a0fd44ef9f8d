// Package wiring assembles the collaborators shared by the backtest and
// live CLI entry points from a loaded config.Config, so each cmd/ binary
// only needs to supply its own CandleFetcher and Strategy.
package wiring

import (
	"github.com/redis/go-redis/v9"

	"github.com/sigtrader/enginecore/internal/config"
	"github.com/sigtrader/enginecore/internal/persistence"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// PersistenceStore dispatches to the Store realization named by
// cfg.Persistence.Backend.
func PersistenceStore(cfg *config.Config) persistence.Store {
	switch cfg.Persistence.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Persistence.RedisURL})
		return persistence.NewRedisStore(client, config.NewLogger("persistence"))
	default:
		return persistence.NewFileStore(cfg.Persistence.Root, config.NewLogger("persistence"))
	}
}

// BuildEngine wires one (strategy, symbol) slot's collaborators from cfg.
func BuildEngine(cfg *config.Config, strategy *sigengine.Strategy, symbol string, store persistence.Store, gate sigengine.RiskGate, fetcher sigengine.CandleFetcher) *sigengine.SignalEngine {
	validator := sigengine.NewSignalValidator(sigengine.ValidatorConfig{
		MinTakeProfitDistancePercent: cfg.Validator.MinTakeProfitDistancePercent,
		MinStopLossDistancePercent:  cfg.Validator.MinStopLossDistancePercent,
		MaxStopLossDistancePercent:  cfg.Validator.MaxStopLossDistancePercent,
		MaxSignalLifetimeMinutes:    cfg.Validator.MaxSignalLifetimeMinutes,
	})
	oracle := sigengine.NewPriceOracle(fetcher, sigengine.OracleConfig{
		AvgPriceCandlesCount:       cfg.Oracle.AvgPriceCandlesCount,
		MinCandlesForMedian:        cfg.Oracle.MinCandlesForMedian,
		PriceAnomalyThresholdFactor: cfg.Oracle.PriceAnomalyThresholdFactor,
		RetryCount:                 cfg.Oracle.RetryCount,
		RetryDelay:                 cfg.Oracle.RetryDelay(),
	}, config.NewLogger("oracle"))
	pnl := sigengine.NewPNLCalculator(sigengine.PNLConfig{
		PercentSlippage: cfg.PNL.PercentSlippage,
		PercentFee:      cfg.PNL.PercentFee,
	})
	bus := sigengine.NewEventBus()
	engineCfg := sigengine.EngineConfig{
		ScheduleAwait:       cfg.Schedule.ScheduleAwait(),
		MaxSignalGeneration: cfg.Schedule.SignalGenerationDeadline(),
	}
	return sigengine.NewSignalEngine(strategy, symbol, "binance", store, validator, gate, oracle, pnl, bus, engineCfg, config.NewSlotLogger(strategy.Name, symbol))
}
