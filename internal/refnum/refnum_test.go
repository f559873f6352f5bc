package refnum

import (
	"strings"
	"testing"
)

func TestAccountNumberFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := AccountNumber()
		if len(n) != 14 {
			t.Fatalf("expected 14 characters, got %q", n)
		}
		if !strings.HasPrefix(n, "WS") {
			t.Fatalf("expected WS prefix, got %q", n)
		}
		for _, r := range n[2:] {
			if r < '0' || r > '9' {
				t.Fatalf("expected digits after prefix, got %q", n)
			}
		}
		seen[n] = true
	}
	if len(seen) < 99 {
		t.Fatalf("account numbers collide far too often: %d unique of 100", len(seen))
	}
}

func TestReferenceFormat(t *testing.T) {
	ref := Reference()
	parts := strings.Split(ref, "-")
	if len(parts) != 3 {
		t.Fatalf("expected TXN-<millis>-<suffix>, got %q", ref)
	}
	if parts[0] != "TXN" {
		t.Fatalf("expected TXN prefix, got %q", ref)
	}
	if len(parts[2]) != 8 {
		t.Fatalf("expected 8 character suffix, got %q", ref)
	}
	if parts[2] != strings.ToUpper(parts[2]) {
		t.Fatalf("expected uppercase suffix, got %q", ref)
	}
}

func TestReferenceUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[Reference()] = true
	}
	if len(seen) != 100 {
		t.Fatalf("expected 100 unique references, got %d", len(seen))
	}
}
