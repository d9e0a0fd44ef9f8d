// Package config loads the process-wide engine configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every CC_* option the core consults. It is loaded once at
// process startup and then injected as an immutable snapshot into each
// engine/driver — see pkg/sigengine, which never reads viper directly.
type Config struct {
	Validator   ValidatorConfig   `mapstructure:"validator"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	PNL         PNLConfig         `mapstructure:"pnl"`
	Oracle      OracleConfig      `mapstructure:"oracle"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	App         AppConfig         `mapstructure:"app"`
}

// AppConfig contains ambient process settings.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// ValidatorConfig mirrors the CC_MIN/MAX_* distance bounds of spec.md §6.
type ValidatorConfig struct {
	MinTakeProfitDistancePercent float64 `mapstructure:"min_takeprofit_distance_percent"`
	MinStopLossDistancePercent   float64 `mapstructure:"min_stoploss_distance_percent"`
	MaxStopLossDistancePercent   float64 `mapstructure:"max_stoploss_distance_percent"`
	MaxSignalLifetimeMinutes     int     `mapstructure:"max_signal_lifetime_minutes"`
}

// ScheduleConfig controls the scheduled → cancelled timeout and the
// getSignal deadline.
type ScheduleConfig struct {
	ScheduleAwaitMinutes        int `mapstructure:"schedule_await_minutes"`
	MaxSignalGenerationSeconds int `mapstructure:"max_signal_generation_seconds"`
}

// PNLConfig holds the slippage/fee percentages applied by PNLCalculator.
type PNLConfig struct {
	PercentSlippage float64 `mapstructure:"percent_slippage"`
	PercentFee      float64 `mapstructure:"percent_fee"`
}

// OracleConfig controls PriceOracle windowing, anomaly detection and retry.
type OracleConfig struct {
	AvgPriceCandlesCount        int     `mapstructure:"avg_price_candles_count"`
	MinCandlesForMedian         int     `mapstructure:"min_candles_for_median"`
	PriceAnomalyThresholdFactor float64 `mapstructure:"price_anomaly_threshold_factor"`
	RetryCount                  int     `mapstructure:"retry_count"`
	RetryDelayMS                int     `mapstructure:"retry_delay_ms"`
}

// StrategyConfig holds the live driver's tick cadence.
type StrategyConfig struct {
	TickTTLMS int `mapstructure:"tick_ttl_ms"`
}

// PersistenceConfig selects and configures the Store realization.
type PersistenceConfig struct {
	Root     string `mapstructure:"root"`
	Backend  string `mapstructure:"backend"` // "file" or "redis"
	RedisURL string `mapstructure:"redis_url"`
}

// Load reads configuration from an optional YAML file plus CC_*-prefixed
// environment variables, in that precedence order (env wins), applying
// spec.md §6 defaults first.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("validator.min_takeprofit_distance_percent", 0.5)
	v.SetDefault("validator.min_stoploss_distance_percent", 0.3)
	v.SetDefault("validator.max_stoploss_distance_percent", 10.0)
	v.SetDefault("validator.max_signal_lifetime_minutes", 1440)

	v.SetDefault("schedule.schedule_await_minutes", 120)
	v.SetDefault("schedule.max_signal_generation_seconds", 30)

	v.SetDefault("pnl.percent_slippage", 0.05)
	v.SetDefault("pnl.percent_fee", 0.1)

	v.SetDefault("oracle.avg_price_candles_count", 5)
	v.SetDefault("oracle.min_candles_for_median", 3)
	v.SetDefault("oracle.price_anomaly_threshold_factor", 3.0)
	v.SetDefault("oracle.retry_count", 3)
	v.SetDefault("oracle.retry_delay_ms", 250)

	v.SetDefault("strategy.tick_ttl_ms", 60_000)

	v.SetDefault("persistence.root", "./logs/data")
	v.SetDefault("persistence.backend", "file")
	v.SetDefault("persistence.redis_url", "localhost:6379")
}

// TickTTL returns the live driver's inter-tick sleep duration.
func (c *StrategyConfig) TickTTL() time.Duration {
	return time.Duration(c.TickTTLMS) * time.Millisecond
}

// ScheduleAwait returns the scheduled→cancelled timeout as a duration.
func (c *ScheduleConfig) ScheduleAwait() time.Duration {
	return time.Duration(c.ScheduleAwaitMinutes) * time.Minute
}

// SignalGenerationDeadline returns the getSignal timeout as a duration.
func (c *ScheduleConfig) SignalGenerationDeadline() time.Duration {
	return time.Duration(c.MaxSignalGenerationSeconds) * time.Second
}

// RetryDelay returns the oracle's inter-retry delay as a duration.
func (c *OracleConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}
