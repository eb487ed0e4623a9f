package claimcheck

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestMapClaimOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMap[uint64, string]()
		entries := rapid.MapOf(rapid.Uint64Min(1), rapid.String()).Draw(t, "entries")

		for key, value := range entries {
			m.Put(key, value)
		}
		if m.Len() != len(entries) {
			t.Fatalf("expected %d pending values, got %d", len(entries), m.Len())
		}

		for key, value := range entries {
			if peeked, ok := m.Peek(key); !ok || peeked != value {
				t.Fatalf("peek of %d failed", key)
			}
			claimed, ok := m.Claim(key)
			if !ok || claimed != value {
				t.Fatalf("claim of %d returned %q, %v", key, claimed, ok)
			}
			if _, ok := m.Claim(key); ok {
				t.Fatalf("value of %d claimed twice", key)
			}
		}

		if m.Len() != 0 || len(m.Pending()) != 0 {
			t.Fatal("map not empty after claiming everything")
		}
	})
}

func TestMultiMapOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMultiMap[string, int]()
		key := rapid.String().Draw(t, "key")
		count := rapid.IntRange(1, 50).Draw(t, "count")

		for i := 0; i < count; i++ {
			m.Put(key, i)
		}
		if m.Count(key) != count {
			t.Fatalf("expected %d values, got %d", count, m.Count(key))
		}

		for i := 0; i < count; i++ {
			value, ok := m.Claim(key)
			if !ok || value != i {
				t.Fatal(fmt.Sprintf("claim %d returned %d, %v", i, value, ok))
			}
		}
		if _, ok := m.Claim(key); ok {
			t.Fatal("claimed from an exhausted key")
		}
		if m.Len() != 0 {
			t.Fatal("exhausted key still pending")
		}
	})
}

func TestMultiMapClaimAll(t *testing.T) {
	m := NewMultiMap[uint64, string]()
	m.Put(1, "a")
	m.Put(1, "b")
	m.Put(2, "c")

	values := m.ClaimAll(1)
	if len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Fatalf("unexpected values %v", values)
	}
	if m.Len() != 1 || m.Count(1) != 0 {
		t.Fatal("ClaimAll left values behind")
	}
}
