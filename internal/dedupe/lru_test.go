// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package dedupe

import "testing"

func TestLRUContainsDoesNotPromote(t *testing.T) {
	t.Parallel()
	l := NewLRU(2)
	l.Add("a")
	l.Add("b")

	// Repeated Contains on "a" must not promote it; "a" stays least-recent.
	for i := 0; i < 5; i++ {
		l.Contains("a")
	}
	l.Add("c") // forces eviction of least-recently-used

	if l.Contains("a") {
		t.Errorf("Contains(a) = true after eviction; Contains must not have promoted a, so a (not b) should be evicted")
	}
	if !l.Contains("b") {
		t.Errorf("Contains(b) = false; b was the most recently Add-ed before c, should remain")
	}
	if !l.Contains("c") {
		t.Errorf("Contains(c) = false; c was just added")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	l := NewLRU(2)
	l.Add("a")
	l.Add("b")
	l.Add("a") // promote a
	l.Add("c") // evicts b, the true LRU entry

	if l.Contains("b") {
		t.Errorf("Contains(b) = true; b should have been evicted as least-recently-used")
	}
	if !l.Contains("a") || !l.Contains("c") {
		t.Errorf("Contains(a)=%v Contains(c)=%v; want both true", l.Contains("a"), l.Contains("c"))
	}
}

func TestLRULen(t *testing.T) {
	t.Parallel()
	l := NewLRU(10)
	for _, k := range []string{"a", "b", "c"} {
		l.Add(k)
	}
	if got := l.Len(); got != 3 {
		t.Errorf("Len() = %d; want 3", got)
	}
}
