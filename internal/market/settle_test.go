package market

import (
	"math"
	"testing"
)

func TestSettleMarketOrderWalksPoolDown(t *testing.T) {
	book := []BookEntry{{OrderID: 1, UserID: "u1", Quantity: 3}}
	fills, next, total := SettleBook(1000, 100, book)

	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	f := fills[0]
	if f.Settled != 3 {
		t.Fatalf("settled = %d, want 3", f.Settled)
	}
	// Units price at 10, 9.9, 9.801 as each sale shrinks the pool.
	wantProceeds := 10.0 + 9.9 + 9.801
	if math.Abs(f.Proceeds-wantProceeds) > 1e-9 {
		t.Fatalf("proceeds = %v, want %v", f.Proceeds, wantProceeds)
	}
	if f.ProceedsStd != 29 {
		t.Fatalf("proceeds std = %d, want floor 29", f.ProceedsStd)
	}
	if total != 29 {
		t.Fatalf("total = %d, want 29", total)
	}
	if math.Abs(next-(1000-wantProceeds)) > 1e-9 {
		t.Fatalf("next floating = %v", next)
	}
}

func TestSettleLimitOrderHoldsOut(t *testing.T) {
	// Spot is 10; a quote of 12 never clears and the entry stays unfilled.
	fills, next, total := SettleBook(1000, 100, []BookEntry{
		{OrderID: 1, UserID: "u1", Quantity: 5, Quote: 12},
	})
	if len(fills) != 0 || total != 0 || next != 1000 {
		t.Fatalf("fills=%d total=%d next=%v, want untouched book", len(fills), total, next)
	}
}

func TestSettleLimitOrderFillsAtQuote(t *testing.T) {
	fills, next, total := SettleBook(1000, 100, []BookEntry{
		{OrderID: 1, UserID: "u1", Quantity: 3, Quote: 5},
	})
	if len(fills) != 1 || fills[0].Settled != 3 {
		t.Fatalf("fills = %+v", fills)
	}
	if fills[0].ProceedsStd != 15 || total != 15 {
		t.Fatalf("proceeds std = %d total = %d, want 15", fills[0].ProceedsStd, total)
	}
	if next != 985 {
		t.Fatalf("next floating = %v, want 985", next)
	}
}

func TestSettleLimitOrderStopsWhenPoolFalls(t *testing.T) {
	// Spot starts at 10.5 and a spot exactly at the quote still clears, so
	// quote 10 drains six units (pool 1050 -> 990) before stopping.
	fills, next, _ := SettleBook(1050, 100, []BookEntry{
		{OrderID: 1, UserID: "u1", Quantity: 50, Quote: 10},
	})
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0].Settled != 6 {
		t.Fatalf("settled = %d, want 6", fills[0].Settled)
	}
	if fills[0].Requested != 50 {
		t.Fatalf("requested = %d, want 50", fills[0].Requested)
	}
	if next != 990 {
		t.Fatalf("next floating = %v, want 990", next)
	}
}

func TestSettleInsertionOrder(t *testing.T) {
	// The first entry drains the pool before the second sees it: it fills
	// whole while the second clears a single unit off the cheapened pool.
	fills, _, _ := SettleBook(1050, 100, []BookEntry{
		{OrderID: 1, UserID: "u1", Quantity: 5, Quote: 10},
		{OrderID: 2, UserID: "u2", Quantity: 5, Quote: 10},
	})
	if len(fills) != 2 {
		t.Fatalf("fills = %+v, want 2 entries", fills)
	}
	if fills[0].OrderID != 1 || fills[0].Settled != 5 {
		t.Fatalf("first fill = %+v", fills[0])
	}
	if fills[1].OrderID != 2 || fills[1].Settled != 1 {
		t.Fatalf("second fill = %+v", fills[1])
	}
}

func TestSettleZeroIssuance(t *testing.T) {
	fills, next, total := SettleBook(1000, 0, []BookEntry{
		{OrderID: 1, UserID: "u1", Quantity: 1},
	})
	if fills != nil || total != 0 || next != 1000 {
		t.Fatalf("degenerate issuance should settle nothing")
	}
}
