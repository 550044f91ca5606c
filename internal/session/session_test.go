package session

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry(time.Hour)

	token, s := r.Create()
	if token == "" || s == nil {
		t.Fatal("empty token or nil session")
	}
	got, ok := r.Get(token)
	if !ok || got != s {
		t.Fatal("token does not resolve to its session")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("unknown token resolved")
	}
}

func TestTokensAreUnique(t *testing.T) {
	r := NewRegistry(time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _ := r.Create()
		if seen[token] {
			t.Fatal("duplicate token")
		}
		seen[token] = true
	}
}

func TestExpiry(t *testing.T) {
	r := NewRegistry(time.Hour)
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	token, _ := r.Create()
	current = current.Add(30 * time.Minute)
	if _, ok := r.Get(token); !ok {
		t.Fatal("session expired too early")
	}

	// The Get refreshed the expiry, so another 45 minutes is still fine.
	current = current.Add(45 * time.Minute)
	if _, ok := r.Get(token); !ok {
		t.Fatal("expiry was not refreshed on access")
	}

	current = current.Add(2 * time.Hour)
	if _, ok := r.Get(token); ok {
		t.Fatal("expired session resolved")
	}
	if r.Len() != 0 {
		t.Errorf("expired session not dropped, len = %d", r.Len())
	}
}

func TestCleanup(t *testing.T) {
	r := NewRegistry(time.Hour)
	current := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	r.Create()
	r.Create()
	current = current.Add(2 * time.Hour)
	token, _ := r.Create()

	if removed := r.Cleanup(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := r.Get(token); !ok {
		t.Error("live session removed by cleanup")
	}
}

func TestDelete(t *testing.T) {
	r := NewRegistry(time.Hour)
	token, _ := r.Create()
	r.Delete(token)
	if _, ok := r.Get(token); ok {
		t.Error("deleted session resolved")
	}
}
