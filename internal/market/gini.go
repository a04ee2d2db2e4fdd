package market

import "sort"

// GiniCoefficient measures wealth concentration over a sample of balances,
// 0 for perfect equality approaching 1 as one holder takes everything. The
// Lorenz curve is integrated with the trapezoid rule over the sorted sample
// with an origin point prepended. Empty and all-zero samples read as 0.
func GiniCoefficient(amounts []int64) float64 {
	if len(amounts) == 0 {
		return 0
	}
	sorted := make([]int64, len(amounts))
	copy(sorted, amounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total int64
	for _, a := range sorted {
		total += a
	}
	if total <= 0 {
		return 0
	}

	// Lorenz points (i/n, cum_i/total) for i = 0..n.
	n := float64(len(sorted))
	var cum int64
	var area float64
	prevY := 0.0
	for _, a := range sorted {
		cum += a
		y := float64(cum) / float64(total)
		area += (prevY + y) / (2 * n)
		prevY = y
	}
	return 1 - 2*area
}

// RankHaircut is the post-redistribution balance for the holder at rank
// (0 = richest): old * rank / 10. The richest is wiped, the tenth keeps 90%.
func RankHaircut(amount int64, rank int) int64 {
	if rank < 0 {
		rank = 0
	}
	if rank >= 10 {
		return amount
	}
	return amount * int64(rank) / 10
}
