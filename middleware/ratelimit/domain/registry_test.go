package domain

import (
	"testing"
	"time"
)

func TestNewRegistry_ValidatesWindowPolicies(t *testing.T) {
	if _, err := NewRegistry(Policy{Name: "x", Algorithm: FixedWindow, Limit: 0, Window: time.Minute}); err == nil {
		t.Fatalf("expected error for limit=0")
	}
	if _, err := NewRegistry(Policy{Name: "x", Algorithm: SlidingWindow, Limit: 5, Window: 0}); err == nil {
		t.Fatalf("expected error for window=0")
	}
}

func TestNewRegistry_ValidatesTokenBucket(t *testing.T) {
	if _, err := NewRegistry(Policy{Name: "x", Algorithm: TokenBucket, Capacity: 10}); err == nil {
		t.Fatalf("expected error for refillPerSecond=0")
	}
}

func TestNewRegistry_RejectsDuplicatesAndUnknownAlgorithm(t *testing.T) {
	p := Policy{Name: "x", Algorithm: FixedWindow, Limit: 1, Window: time.Second}
	if _, err := NewRegistry(p, p); err == nil {
		t.Fatalf("expected error for duplicate policy")
	}
	if _, err := NewRegistry(Policy{Name: "y", Algorithm: "leaky_bucket", Limit: 1, Window: time.Second}); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}

func TestRegistry_GetAndNames(t *testing.T) {
	reg, err := NewRegistry(
		Policy{Name: "b", Algorithm: FixedWindow, Limit: 1, Window: time.Second},
		Policy{Name: "a", Algorithm: FixedWindow, Limit: 1, Window: time.Second},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := reg.Get("a"); !ok {
		t.Fatalf("expected policy a")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatalf("did not expect missing policy")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected sorted names [a b], got %v", names)
	}
}

func TestPolicyKey_IsPureAndNamespaced(t *testing.T) {
	p := Policy{Name: "auth"}
	if p.Key("1.2.3.4") != Key("ratelimit:auth:1.2.3.4") {
		t.Fatalf("unexpected key %q", p.Key("1.2.3.4"))
	}
	if p.Key("1.2.3.4") != p.Key("1.2.3.4") {
		t.Fatalf("key derivation must be deterministic")
	}
}
