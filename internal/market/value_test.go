package market

import (
	"math"
	"testing"
)

func TestValuationTracksCommunityWealth(t *testing.T) {
	// 1000 circulating gold at level 2 plus 300 std in the treasury.
	if got := Valuation(1000, 2, 300); got != 2300 {
		t.Fatalf("Valuation = %d, want 2300", got)
	}
	if got := Valuation(0, 3, 0); got != 0 {
		t.Fatalf("empty community = %d, want 0", got)
	}
	// A richer community raises the valuation without any listing event.
	if Valuation(2000, 2, 300) <= Valuation(1000, 2, 300) {
		t.Fatal("valuation must grow with member wealth")
	}
}

func TestFloatIncome(t *testing.T) {
	if got := FloatIncome(100, 1000, 900); got != -10 {
		t.Fatalf("shrinking pool: delta = %d, want -10", got)
	}
	if got := FloatIncome(100, 1000, 1100); got != 10 {
		t.Fatalf("growing pool: delta = %d, want 10", got)
	}
	if got := FloatIncome(100, 0, 900); got != 0 {
		t.Fatalf("cold pool must yield nothing, got %d", got)
	}
	if got := FloatIncome(0, 1000, 900); got != 0 {
		t.Fatalf("empty treasury must yield nothing, got %d", got)
	}
}

func TestTreasuryOwed(t *testing.T) {
	if got := treasuryOwed(100, 2); got != 50 {
		t.Fatalf("owed = %d, want 50", got)
	}
	if got := treasuryOwed(100, 0); got != 100 {
		t.Fatalf("degenerate level must not divide, got %d", got)
	}
}

func TestPlanPurchaseEscalates(t *testing.T) {
	bought, cost, next, stopped := planPurchase(1000, 1000, 100, 10, 3, 1e9, 0)
	if bought != 3 || stopped != "" {
		t.Fatalf("bought=%d stopped=%q", bought, stopped)
	}
	// Units price at 10, 10.1, 10.201 as each purchase inflates the pool.
	wantCost := 10.0 + 10.1 + 10.201
	if math.Abs(cost-wantCost) > 1e-9 {
		t.Fatalf("cost = %v, want %v", cost, wantCost)
	}
	if math.Abs(next-(1000+wantCost)) > 1e-9 {
		t.Fatalf("next floating = %v", next)
	}
}

func TestPlanPurchasePriceLimit(t *testing.T) {
	bought, _, _, stopped := planPurchase(1000, 1000, 100, 10, 5, 1e9, 10.05)
	if bought != 1 {
		t.Fatalf("bought = %d, want 1 before the limit bites", bought)
	}
	if stopped != "price limit hit" {
		t.Fatalf("stopped = %q", stopped)
	}
	// A limit below even the first unit buys nothing.
	bought, _, _, stopped = planPurchase(1000, 1000, 100, 10, 5, 1e9, 9)
	if bought != 0 || stopped != "price limit hit" {
		t.Fatalf("bought=%d stopped=%q", bought, stopped)
	}
}

func TestPlanPurchaseFundsExhausted(t *testing.T) {
	bought, _, _, stopped := planPurchase(1000, 1000, 100, 10, 5, 15, 0)
	if bought != 1 || stopped != "funds exhausted" {
		t.Fatalf("bought=%d stopped=%q", bought, stopped)
	}
}

func TestPlanPurchaseFloatSoldOut(t *testing.T) {
	bought, _, _, stopped := planPurchase(1000, 1000, 100, 2, 5, 1e9, 0)
	if bought != 2 || stopped != "float sold out" {
		t.Fatalf("bought=%d stopped=%q", bought, stopped)
	}
}

func TestPlanPurchaseValueFloor(t *testing.T) {
	// A depressed pool still prices units off the book value.
	_, cost, _, _ := planPurchase(500, 1000, 100, 10, 1, 1e9, 0)
	if cost != 10 {
		t.Fatalf("cost = %v, want the value-floored 10", cost)
	}
}
