package economy

import (
	"errors"
	"testing"
)

func TestParseItemID(t *testing.T) {
	rarity, scope, perm, number, err := ParseItemID("item:12102")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rarity != 1 || scope != ScopeGlobal || perm != Permanent || number != 2 {
		t.Fatalf("got rarity=%d scope=%d perm=%d number=%d", rarity, scope, perm, number)
	}

	bad := []string{
		"item:1",       // too short
		"item:13101",   // scope digit out of range
		"item:1121x1",  // non-digit
		"stock:g1",     // wrong prefix
		"gold",         // no prefix at all
	}
	for _, id := range bad {
		if _, _, _, _, err := ParseItemID(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestNewCatalogRejectsEncodingMismatch(t *testing.T) {
	_, err := NewCatalog([]Item{
		{ID: "item:11101", Name: "gold", Rarity: 2, Scope: ScopeLocal, Permanence: Permanent, Number: 1},
	})
	if err == nil {
		t.Fatal("expected mismatch error, got nil")
	}
}

func TestNewCatalogRejectsDuplicateName(t *testing.T) {
	_, err := NewCatalog([]Item{
		{ID: "item:11101", Name: "gold", Rarity: 1, Scope: ScopeLocal, Permanence: Permanent, Number: 1},
		{ID: "item:11102", Name: "gold", Rarity: 1, Scope: ScopeLocal, Permanence: Permanent, Number: 2},
	})
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision, got %v", err)
	}
}

func TestBuiltinCatalog(t *testing.T) {
	c, err := NewCatalog(BuiltinItems())
	if err != nil {
		t.Fatalf("builtin catalog: %v", err)
	}
	gold, ok := c.ByName("gold")
	if !ok || gold.ID != GoldID {
		t.Fatalf("gold lookup failed: %+v ok=%v", gold, ok)
	}
	std, ok := c.ByID(StdGoldID)
	if !ok || std.Scope != ScopeGlobal {
		t.Fatalf("std gold lookup failed: %+v ok=%v", std, ok)
	}
}

func TestRegisterSecurityRename(t *testing.T) {
	c, err := NewCatalog(BuiltinItems())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	sec, err := c.RegisterSecurity("g1", "acme")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sec.ID != SecurityItemID("g1") || !IsSecurityID(sec.ID) {
		t.Fatalf("unexpected security id %q", sec.ID)
	}

	// Same group, new name: the old name must stop resolving.
	if _, err := c.RegisterSecurity("g1", "acme corp"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := c.ByName("acme"); ok {
		t.Fatal("old name still resolves after rename")
	}
	if it, ok := c.ByName("acme corp"); !ok || it.ID != SecurityItemID("g1") {
		t.Fatalf("new name lookup failed: %+v ok=%v", it, ok)
	}

	// A different group may not take a name already in use.
	if _, err := c.RegisterSecurity("g2", "acme corp"); !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision, got %v", err)
	}
	if _, err := c.RegisterSecurity("g2", "gold"); !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision for builtin name, got %v", err)
	}
}

func TestOwnerFor(t *testing.T) {
	acct := &Account{ID: 7, UserID: "u1"}
	c, _ := NewCatalog(BuiltinItems())

	gold, _ := c.ByID(GoldID)
	owner, ok := gold.OwnerFor(acct)
	if !ok || owner != AccountOwner(7) {
		t.Fatalf("gold owner = %+v ok=%v", owner, ok)
	}

	std, _ := c.ByID(StdGoldID)
	owner, ok = std.OwnerFor(acct)
	if !ok || owner != UserOwner("u1") {
		t.Fatalf("std gold owner = %+v ok=%v", owner, ok)
	}

	air, _ := c.ByID(AirID)
	if _, ok := air.OwnerFor(acct); ok {
		t.Fatal("air should have no ledger owner")
	}
}
