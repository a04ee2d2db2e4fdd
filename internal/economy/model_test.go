package economy

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestConversionRates(t *testing.T) {
	cases := []struct {
		local, level, std int64
	}{
		{0, 1, 0},
		{100, 1, 100},
		{100, 2, 200},
		{1000, 3, 3000},
	}
	for _, c := range cases {
		if got := ToStdGold(c.local, c.level); got != c.std {
			t.Fatalf("ToStdGold(%d, %d) = %d, want %d", c.local, c.level, got, c.std)
		}
	}
	// Level below 1 clamps to 1.
	if got := ToStdGold(50, 0); got != 50 {
		t.Fatalf("ToStdGold(50, 0) = %d, want 50", got)
	}
}

func TestToLocalGoldRoundsUp(t *testing.T) {
	cases := []struct {
		std, level, local int64
	}{
		{0, 2, 0},
		{200, 2, 100},
		{201, 2, 101},
		{1, 3, 1},
		{7, 3, 3},
	}
	for _, c := range cases {
		if got := ToLocalGold(c.std, c.level); got != c.local {
			t.Fatalf("ToLocalGold(%d, %d) = %d, want %d", c.std, c.level, got, c.local)
		}
	}
}

func TestShortfallErrorMatchesSentinel(t *testing.T) {
	var err error = &ShortfallError{ItemID: GoldID, Have: 3}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("ShortfallError should match ErrInsufficientFunds")
	}
	var sf *ShortfallError
	if !errors.As(err, &sf) || sf.Have != 3 {
		t.Fatalf("errors.As failed: %+v", sf)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("ShortfallError should not match ErrNotFound")
	}
}

func TestCountersDecodeKeepsDefaults(t *testing.T) {
	// Older rows may carry a partial block; missing fields keep zero values and
	// the version is normalized on write, not read.
	c := DefaultCounters()
	if err := json.Unmarshal([]byte(`{"version":1,"win":4}`), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Win != 4 || c.Loss != 0 || c.Version != CountersVersion {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestCountersRecordStreaks(t *testing.T) {
	c := DefaultCounters()
	c.Record(true)
	c.Record(true)
	c.Record(true)
	if c.Win != 3 || c.WinStreak != 3 || c.WinStreakMax != 3 {
		t.Fatalf("after three wins: %+v", c)
	}
	c.Record(false)
	if c.Loss != 1 || c.WinStreak != 0 || c.LoseStreak != 1 {
		t.Fatalf("loss should break the win streak: %+v", c)
	}
	c.Record(true)
	if c.WinStreak != 1 || c.WinStreakMax != 3 || c.LoseStreak != 0 {
		t.Fatalf("streak max must survive the reset: %+v", c)
	}
}

func TestOwnerConstructors(t *testing.T) {
	if o := AccountOwner(42); o.Kind != OwnerAccount || o.ID != "42" {
		t.Fatalf("AccountOwner = %+v", o)
	}
	if o := UserOwner("u9"); o.Kind != OwnerUser || o.ID != "u9" {
		t.Fatalf("UserOwner = %+v", o)
	}
	if o := GroupOwner("g9"); o.Kind != OwnerGroup || o.ID != "g9" {
		t.Fatalf("GroupOwner = %+v", o)
	}
}
