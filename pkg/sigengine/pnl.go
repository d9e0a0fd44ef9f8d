package sigengine

// PNLConfig holds the slippage/fee percentages applied per leg.
type PNLConfig struct {
	PercentSlippage float64 // CC_PERCENT_SLIPPAGE
	PercentFee      float64 // CC_PERCENT_FEE
}

// PNLResult carries every value the closed event attaches (spec.md §4.3).
type PNLResult struct {
	EntryAdjusted float64
	ExitAdjusted  float64
	PriceOpen     float64
	PriceClose    float64
	PNLPercent    float64
	Reason        CloseReason
}

// PNLCalculator computes realized PNL with slippage and fees applied to
// both legs of the trade, per spec.md §4.3.
type PNLCalculator struct {
	slippage float64
	fee      float64
}

// NewPNLCalculator builds a calculator from its configuration snapshot.
func NewPNLCalculator(cfg PNLConfig) *PNLCalculator {
	return &PNLCalculator{
		slippage: cfg.PercentSlippage / 100,
		fee:      cfg.PercentFee / 100,
	}
}

// Compute returns the realized PNL for closing position at priceClose,
// given it was opened at priceOpen, for the given close reason.
func (c *PNLCalculator) Compute(position Position, priceOpen, priceClose float64, reason CloseReason) PNLResult {
	var entryAdj, exitAdj float64
	switch position {
	case PositionLong:
		entryAdj = priceOpen * (1 + c.slippage) * (1 + c.fee)
		exitAdj = priceClose * (1 - c.slippage) * (1 - c.fee)
	case PositionShort:
		entryAdj = priceOpen * (1 - c.slippage) * (1 - c.fee)
		exitAdj = priceClose * (1 + c.slippage) * (1 + c.fee)
	}

	var pnlPct float64
	switch position {
	case PositionLong:
		pnlPct = (exitAdj - entryAdj) / entryAdj * 100
	case PositionShort:
		pnlPct = (entryAdj - exitAdj) / entryAdj * 100
	}

	return PNLResult{
		EntryAdjusted: entryAdj,
		ExitAdjusted:  exitAdj,
		PriceOpen:     priceOpen,
		PriceClose:    priceClose,
		PNLPercent:    pnlPct,
		Reason:        reason,
	}
}

// RoundTripNeutralPercent returns the pnl_pct of closing exactly at
// priceOpen — the round-trip-neutrality invariant of spec.md §4.3/§8(5):
// ((1−s)(1−f))/((1+s)(1+f)) − 1, expressed as a percent.
func (c *PNLCalculator) RoundTripNeutralPercent() float64 {
	return (((1 - c.slippage) * (1 - c.fee)) / ((1 + c.slippage) * (1 + c.fee)) - 1) * 100
}
