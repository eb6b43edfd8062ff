package internal

import (
	"encoding/hex"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("203.0.113.7", "agent/1.0")
	b := Fingerprint("203.0.113.7", "agent/1.0")
	if a != b {
		t.Fatal("same inputs must fingerprint identically")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Fatalf("fingerprint is not hex: %v", err)
	}

	if Fingerprint("203.0.113.8", "agent/1.0") == a {
		t.Fatal("different IP must change the fingerprint")
	}
	if Fingerprint("203.0.113.7", "agent/2.0") == a {
		t.Fatal("different agent must change the fingerprint")
	}
}

func TestNewCSRFToken(t *testing.T) {
	a, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken failed: %v", err)
	}
	if len(a) != 48 {
		t.Fatalf("expected 48 hex chars, got %d", len(a))
	}

	b, err := NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken failed: %v", err)
	}
	if a == b {
		t.Fatal("tokens must be random")
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("hash must be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("different tokens must hash differently")
	}
}
