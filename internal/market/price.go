package market

import "math"

const (
	// TrendStdDev is the sigma of the per-tick gaussian drift.
	TrendStdDev = 0.03
	// DispersionRange bounds the uniform noise term, scaled by valuation.
	DispersionRange = 0.1
	// ReversionRate pulls the floating pool back toward the valuation.
	ReversionRate = 0.05
	// HistoryDepth is how many tick samples are retained per security.
	HistoryDepth = 720
)

// PriceStep advances the floating pool one tick. trend and dispersion are the
// caller's random draws so the walk itself stays deterministic and testable.
// A degenerate result re-seeds at the valuation rather than letting the pool
// go negative or NaN.
func PriceStep(floating, value, trend, dispersion float64) float64 {
	next := floating
	next += next * trend
	next += value * dispersion
	next += (value - next) * ReversionRate
	if next <= 0 || math.IsNaN(next) || math.IsInf(next, 0) {
		return value
	}
	return next
}
