// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package dedupe

import "sync"

// HotSet is an unordered, lock-free concurrent set of hex-encoded event
// identifiers, soft-capped at capacity entries. It is a cache of caches,
// not authoritative: when it fills it drops an arbitrary half rather than
// maintaining strict LRU order.
type HotSet struct {
	m        sync.Map
	capacity int
}

// NewHotSet creates a hot-set with the given soft capacity.
func NewHotSet(capacity int) *HotSet {
	if capacity <= 0 {
		capacity = 10000
	}
	return &HotSet{capacity: capacity}
}

// Contains reports whether key is present.
func (h *HotSet) Contains(key string) bool {
	_, ok := h.m.Load(key)
	return ok
}

// Insert adds key, evicting half the set first if it is already at
// capacity. Eviction order is unspecified (Go's sync.Map Range order is
// randomized per call), which satisfies "any subset of size capacity/2".
func (h *HotSet) Insert(key string) {
	if h.Len() >= h.capacity {
		h.evictHalf()
	}
	h.m.Store(key, struct{}{})
}

// Remove deletes key if present.
func (h *HotSet) Remove(key string) {
	h.m.Delete(key)
}

// Len returns the approximate number of entries (sync.Map has no O(1)
// length, so this ranges the map; acceptable since the hot-set is
// soft-capped and small by construction).
func (h *HotSet) Len() int {
	n := 0
	h.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Capacity returns the configured soft cap.
func (h *HotSet) Capacity() int {
	return h.capacity
}

// evictHalf removes the first capacity/2 keys observed while ranging the
// set.
func (h *HotSet) evictHalf() {
	toEvict := h.capacity / 2
	if toEvict < 1 {
		toEvict = 1
	}
	evicted := 0
	h.m.Range(func(key, _ any) bool {
		if evicted >= toEvict {
			return false
		}
		h.m.Delete(key)
		evicted++
		return true
	})
}
