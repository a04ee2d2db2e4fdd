package market

import (
	"testing"
	"time"
)

func TestConfirmStoreTakeOnce(t *testing.T) {
	s := NewConfirmStore(time.Minute)
	token := s.Put(Pending{UserID: "u1", GroupID: "g1", Name: "acme", Rename: true})

	p, ok := s.Take(token)
	if !ok || p.Name != "acme" || p.UserID != "u1" {
		t.Fatalf("take failed: %+v ok=%v", p, ok)
	}
	if _, ok := s.Take(token); ok {
		t.Fatal("token consumed twice")
	}
	if _, ok := s.Take("no-such-token"); ok {
		t.Fatal("unknown token accepted")
	}
}

func TestConfirmStoreExpiry(t *testing.T) {
	s := NewConfirmStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	token := s.Put(Pending{UserID: "u1", GroupID: "g1", Name: "acme"})
	now = now.Add(time.Minute + time.Second)
	if _, ok := s.Take(token); ok {
		t.Fatal("expired token accepted")
	}
}

func TestConfirmStoreReplacesProposal(t *testing.T) {
	s := NewConfirmStore(time.Minute)
	old := s.Put(Pending{UserID: "u1", GroupID: "g1", Name: "first"})
	fresh := s.Put(Pending{UserID: "u1", GroupID: "g1", Name: "second"})

	if _, ok := s.Take(old); ok {
		t.Fatal("superseded token still valid")
	}
	p, ok := s.Take(fresh)
	if !ok || p.Name != "second" {
		t.Fatalf("fresh token failed: %+v ok=%v", p, ok)
	}

	// Different users in the same group do not displace each other.
	a := s.Put(Pending{UserID: "u1", GroupID: "g2", Name: "alpha"})
	_ = s.Put(Pending{UserID: "u2", GroupID: "g2", Name: "beta"})
	if _, ok := s.Take(a); !ok {
		t.Fatal("unrelated proposal displaced")
	}
}
