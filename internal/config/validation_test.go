package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestConfig() *Config {
	return &Config{
		Validator: ValidatorConfig{
			MinTakeProfitDistancePercent: 0.5,
			MinStopLossDistancePercent:   0.3,
			MaxStopLossDistancePercent:   10,
			MaxSignalLifetimeMinutes:     1440,
		},
		Schedule: ScheduleConfig{
			ScheduleAwaitMinutes:        120,
			MaxSignalGenerationSeconds: 30,
		},
		PNL: PNLConfig{
			PercentSlippage: 0.05,
			PercentFee:      0.1,
		},
		Oracle: OracleConfig{
			AvgPriceCandlesCount:        5,
			MinCandlesForMedian:         3,
			PriceAnomalyThresholdFactor: 3,
			RetryCount:                  3,
			RetryDelayMS:                250,
		},
		Persistence: PersistenceConfig{
			Root:    "./logs/data",
			Backend: "file",
		},
	}
}

func TestValidateDefaultsOK(t *testing.T) {
	cfg := defaultTestConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInvertedStopLossBounds(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Validator.MaxStopLossDistancePercent = 0.1 // below min
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_stoploss_distance_percent")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Persistence.Backend = "s3"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence.backend")
}

func TestValidateRejectsMedianFloorAboveWindow(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Oracle.MinCandlesForMedian = 10
	cfg.Oracle.AvgPriceCandlesCount = 5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_candles_for_median")
}
