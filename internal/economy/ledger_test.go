package economy

import (
	"errors"
	"testing"
)

func TestResolveDeltaRoundTrip(t *testing.T) {
	// Credit onto an empty balance, credit again, then debit it all away.
	next, op, err := resolveDelta(GoldID, 0, 50)
	if err != nil || next != 50 || op != opInsert {
		t.Fatalf("credit on empty: next=%d op=%d err=%v", next, op, err)
	}
	next, op, err = resolveDelta(GoldID, next, 20)
	if err != nil || next != 70 || op != opUpdate {
		t.Fatalf("further credit: next=%d op=%d err=%v", next, op, err)
	}
	next, op, err = resolveDelta(GoldID, next, -70)
	if err != nil || next != 0 || op != opDelete {
		t.Fatalf("debit to zero: next=%d op=%d err=%v", next, op, err)
	}
}

func TestResolveDeltaOverDebit(t *testing.T) {
	next, op, err := resolveDelta(GoldID, 30, -40)
	var sf *ShortfallError
	if !errors.As(err, &sf) {
		t.Fatalf("want ShortfallError, got %v", err)
	}
	if sf.Have != 30 {
		t.Fatalf("Have = %d, want the pre-debit 30", sf.Have)
	}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("shortfall should match ErrInsufficientFunds")
	}
	if op != opNone || next != 30 {
		t.Fatalf("over-debit must mutate nothing: next=%d op=%d", next, op)
	}
}

func TestResolveDeltaZeroOnZero(t *testing.T) {
	next, op, err := resolveDelta(GoldID, 0, 0)
	if err != nil || next != 0 || op != opNone {
		t.Fatalf("zero on zero: next=%d op=%d err=%v", next, op, err)
	}
}

func TestResolveDeltaInvariant(t *testing.T) {
	// A corrupt negative balance can only surface as ErrInvariant, never as a
	// user-facing shortfall.
	_, op, err := resolveDelta(GoldID, -5, 1)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("want ErrInvariant, got %v", err)
	}
	if op != opNone {
		t.Fatalf("invariant violation must mutate nothing, op=%d", op)
	}
}
