package market

import (
	"math"

	"sarof/internal/economy"
)

// Valuation is a security's current book value: the members' circulating gold
// in standardized terms plus the treasury's standardized balance. It is
// recomputed from live balances at every tick and purchase, so the price walk
// anchors to what the community actually holds.
func Valuation(memberGold, level, treasuryStd int64) int64 {
	return economy.ToStdGold(memberGold, level) + treasuryStd
}

// FloatIncome is the ledger delta that keeps the issuer's gold riding its own
// price walk: the balance scales by post/pre. A non-positive pre-walk pool
// yields no income.
func FloatIncome(balance int64, pre, post float64) int64 {
	if pre <= 0 || balance <= 0 {
		return 0
	}
	return int64(float64(balance)*post/pre) - balance
}

// treasuryOwed converts a tick's std-gold payout into the local gold the
// issuer covers it with.
func treasuryOwed(totalStd, level int64) int64 {
	if level < 1 {
		return totalStd
	}
	return totalStd / level
}

// planPurchase walks the escalating unit price until the requested units are
// bought or a stop fires: the float runs out, a per-unit price limit is
// exceeded (limit 0 means none), or the spend cap would be crossed. Each unit
// bought inflates the pool, so big buys push their own price up.
func planPurchase(floating float64, value, issuance, available, units int64, spendCap, limit float64) (bought int64, cost, nextFloating float64, stopped string) {
	nextFloating = floating
	if issuance <= 0 {
		return 0, 0, nextFloating, "float sold out"
	}
	for bought < units {
		if bought >= available {
			return bought, cost, nextFloating, "float sold out"
		}
		unit := math.Max(nextFloating, float64(value)) / float64(issuance)
		if limit > 0 && unit > limit {
			return bought, cost, nextFloating, "price limit hit"
		}
		if cost+unit > spendCap {
			return bought, cost, nextFloating, "funds exhausted"
		}
		cost += unit
		nextFloating += unit
		bought++
	}
	return bought, cost, nextFloating, ""
}
