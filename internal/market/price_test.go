package market

import (
	"math"
	"testing"
)

func TestPriceStepFormula(t *testing.T) {
	// floating 1000, value 2000, trend +1%, dispersion +2%:
	// 1000 + 10 + 40 = 1050, then reversion (2000-1050)*0.05 = 47.5.
	got := PriceStep(1000, 2000, 0.01, 0.02)
	want := 1097.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("PriceStep = %v, want %v", got, want)
	}
}

func TestPriceStepConvergesWithoutNoise(t *testing.T) {
	const value = 10_000.0
	floating := 100.0
	prevGap := math.Abs(value - floating)
	for i := 0; i < 200; i++ {
		floating = PriceStep(floating, value, 0, 0)
		gap := math.Abs(value - floating)
		if gap > prevGap {
			t.Fatalf("step %d: gap grew from %v to %v", i, prevGap, gap)
		}
		prevGap = gap
	}
	if prevGap > 1 {
		t.Fatalf("did not converge: floating %v", floating)
	}
}

func TestPriceStepReseedsDegenerate(t *testing.T) {
	cases := []float64{
		PriceStep(0, 500, 0, 0),
		PriceStep(-10, 500, 0, 0),
		PriceStep(math.NaN(), 500, 0, 0),
		PriceStep(100, 500, -50, 0), // collapses below zero
	}
	for i, got := range cases {
		if got != 500 {
			t.Fatalf("case %d: got %v, want reseed to 500", i, got)
		}
	}
}

func TestSpot(t *testing.T) {
	sec := &Security{Floating: 1500, Issuance: 100}
	if got := sec.Spot(); got != 15 {
		t.Fatalf("Spot = %v, want 15", got)
	}
	if got := (&Security{Floating: 1500}).Spot(); got != 0 {
		t.Fatalf("Spot with zero issuance = %v, want 0", got)
	}
}
