package strategies

import (
	"time"

	"github.com/sigtrader/enginecore/pkg/sigengine"
)

// Names lists the strategies a caller can request by name.
const (
	NameTrendFollow   = "trend-follow"
	NameMeanReversion = "mean-reversion"
)

// Build returns a *sigengine.Strategy for the given registered name, wired
// against fetcher for its own candle lookback. It returns nil for an
// unrecognized name.
func Build(name string, fetcher sigengine.CandleFetcher) *sigengine.Strategy {
	switch name {
	case NameTrendFollow:
		cfg := DefaultTrendFollowConfig()
		return &sigengine.Strategy{
			Name:      NameTrendFollow,
			Interval:  time.Minute,
			GetSignal: NewTrendFollow(fetcher, cfg),
		}
	case NameMeanReversion:
		cfg := DefaultMeanReversionConfig()
		return &sigengine.Strategy{
			Name:      NameMeanReversion,
			Interval:  time.Minute,
			GetSignal: NewMeanReversion(fetcher, cfg),
		}
	default:
		return nil
	}
}

// Names returns the registered strategy names, for usage/help text.
func Names() []string {
	return []string{NameTrendFollow, NameMeanReversion}
}
