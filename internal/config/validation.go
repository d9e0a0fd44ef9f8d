package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate checks the loaded configuration against the bounds spec.md §3
// and §6 place on the CC_* options. An invalid configuration is a startup
// error, not a per-tick one.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateValidator()...)
	errs = append(errs, c.validateSchedule()...)
	errs = append(errs, c.validatePNL()...)
	errs = append(errs, c.validateOracle()...)
	errs = append(errs, c.validatePersistence()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateValidator() ValidationErrors {
	var errs ValidationErrors
	v := c.Validator

	if v.MinTakeProfitDistancePercent <= 0 {
		errs = append(errs, ValidationError{"validator.min_takeprofit_distance_percent", "must be greater than 0"})
	}
	if v.MinStopLossDistancePercent <= 0 {
		errs = append(errs, ValidationError{"validator.min_stoploss_distance_percent", "must be greater than 0"})
	}
	if v.MaxStopLossDistancePercent <= v.MinStopLossDistancePercent {
		errs = append(errs, ValidationError{"validator.max_stoploss_distance_percent", "must exceed min_stoploss_distance_percent"})
	}
	if v.MaxSignalLifetimeMinutes <= 0 {
		errs = append(errs, ValidationError{"validator.max_signal_lifetime_minutes", "must be greater than 0"})
	}
	return errs
}

func (c *Config) validateSchedule() ValidationErrors {
	var errs ValidationErrors
	s := c.Schedule

	if s.ScheduleAwaitMinutes <= 0 {
		errs = append(errs, ValidationError{"schedule.schedule_await_minutes", "must be greater than 0"})
	}
	if s.MaxSignalGenerationSeconds <= 0 {
		errs = append(errs, ValidationError{"schedule.max_signal_generation_seconds", "must be greater than 0"})
	}
	return errs
}

func (c *Config) validatePNL() ValidationErrors {
	var errs ValidationErrors
	p := c.PNL

	if p.PercentSlippage < 0 {
		errs = append(errs, ValidationError{"pnl.percent_slippage", "must be non-negative"})
	}
	if p.PercentFee < 0 {
		errs = append(errs, ValidationError{"pnl.percent_fee", "must be non-negative"})
	}
	return errs
}

func (c *Config) validateOracle() ValidationErrors {
	var errs ValidationErrors
	o := c.Oracle

	if o.AvgPriceCandlesCount <= 0 {
		errs = append(errs, ValidationError{"oracle.avg_price_candles_count", "must be greater than 0"})
	}
	if o.MinCandlesForMedian <= 0 || o.MinCandlesForMedian > o.AvgPriceCandlesCount {
		errs = append(errs, ValidationError{"oracle.min_candles_for_median", "must be between 1 and avg_price_candles_count"})
	}
	if o.PriceAnomalyThresholdFactor <= 1 {
		errs = append(errs, ValidationError{"oracle.price_anomaly_threshold_factor", "must exceed 1"})
	}
	if o.RetryCount < 0 {
		errs = append(errs, ValidationError{"oracle.retry_count", "must be non-negative"})
	}
	if o.RetryDelayMS < 0 {
		errs = append(errs, ValidationError{"oracle.retry_delay_ms", "must be non-negative"})
	}
	return errs
}

func (c *Config) validatePersistence() ValidationErrors {
	var errs ValidationErrors
	p := c.Persistence

	if p.Root == "" {
		errs = append(errs, ValidationError{"persistence.root", "must not be empty"})
	}
	switch p.Backend {
	case "file", "redis":
	default:
		errs = append(errs, ValidationError{"persistence.backend", fmt.Sprintf("unknown backend %q, must be 'file' or 'redis'", p.Backend)})
	}
	return errs
}
