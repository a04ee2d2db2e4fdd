package market

import (
	"math"
	"testing"
)

func TestGiniDegenerateSamples(t *testing.T) {
	if g := GiniCoefficient(nil); g != 0 {
		t.Fatalf("empty sample = %v, want 0", g)
	}
	if g := GiniCoefficient([]int64{0, 0, 0}); g != 0 {
		t.Fatalf("all-zero sample = %v, want 0", g)
	}
	if g := GiniCoefficient([]int64{5, 5, 5, 5}); g != 0 {
		t.Fatalf("perfect equality = %v, want exactly 0", g)
	}
}

func TestGiniConcentration(t *testing.T) {
	// One holder with everything among four: Lorenz area 1/8, gini 0.75.
	if g := GiniCoefficient([]int64{0, 0, 0, 100}); math.Abs(g-0.75) > 1e-9 {
		t.Fatalf("gini = %v, want 0.75", g)
	}
	// The classic one-rich-three-poor group.
	g := GiniCoefficient([]int64{1000, 100, 100, 100})
	if math.Abs(g-0.51923) > 1e-4 {
		t.Fatalf("gini = %v, want ~0.519", g)
	}
	if g <= 0.5 {
		t.Fatalf("gini = %v, should exceed 0.5", g)
	}
}

func TestGiniOrderIndependent(t *testing.T) {
	a := GiniCoefficient([]int64{10, 200, 30, 4000})
	b := GiniCoefficient([]int64{4000, 10, 30, 200})
	if a != b {
		t.Fatalf("gini depends on sample order: %v vs %v", a, b)
	}
}

func TestRankHaircut(t *testing.T) {
	cases := []struct {
		amount int64
		rank   int
		want   int64
	}{
		{1000, 0, 0},    // richest is wiped
		{1000, 1, 100},
		{1000, 5, 500},
		{1000, 9, 900},
		{1000, 10, 1000}, // past the top ten nothing changes
		{999, 3, 299},    // integer floor
	}
	for _, c := range cases {
		if got := RankHaircut(c.amount, c.rank); got != c.want {
			t.Fatalf("RankHaircut(%d, %d) = %d, want %d", c.amount, c.rank, got, c.want)
		}
	}
}
