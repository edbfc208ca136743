// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package dedupe

import "testing"

func TestHotSetBasicOperations(t *testing.T) {
	t.Parallel()
	h := NewHotSet(100)

	h.Insert("a")
	if !h.Contains("a") {
		t.Errorf("Contains(a) = false after Insert")
	}
	if h.Contains("b") {
		t.Errorf("Contains(b) = true before Insert")
	}

	h.Remove("a")
	if h.Contains("a") {
		t.Errorf("Contains(a) = true after Remove")
	}
}

func TestHotSetHalfEvictionAtCapacity(t *testing.T) {
	t.Parallel()
	const capacity = 10
	h := NewHotSet(capacity)

	for i := 0; i < capacity; i++ {
		h.Insert(keyFor(i))
	}
	if got := h.Len(); got != capacity {
		t.Fatalf("Len() after filling = %d; want %d", got, capacity)
	}

	// Next insert must trigger half-eviction, leaving room.
	h.Insert("one-more")

	if got := h.Len(); got >= capacity {
		t.Errorf("Len() after over-capacity insert = %d; want < %d (half-eviction should have freed space)", got, capacity)
	}
}
