// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package dedupe implements the four-layer event deduplication engine:
// hot-set, bloom filter, LRU cache, and (via the store package) the
// persistent store.
package dedupe

import (
	"hash/fnv"
	"sync"
)

// Bloom is a probabilistic set membership test over hex-encoded event
// identifiers.
//
// Key characteristics:
//   - No false negatives: if Contains() returns false, the id was
//     definitely never inserted.
//   - Possible false positives: if Contains() returns true, the id might
//     have been inserted.
//   - Cannot remove items; Clear() is provided for test use only.
type Bloom struct {
	mu       sync.RWMutex
	bits     []uint64
	size     uint64
	hashFns  int
	count    int
	capacity int
}

// NewBloom creates a Bloom filter sized for expectedItems at the given
// target false-positive rate.
func NewBloom(expectedItems int, falsePositiveRate float64) *Bloom {
	if expectedItems <= 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n * ln(p) / (ln(2)^2), k = (m/n) * ln(2)
	const ln2 = 0.693147
	ln2Squared := ln2 * ln2
	lnP := approximateLn(falsePositiveRate)

	m := int(-float64(expectedItems) * lnP / ln2Squared)
	if m < 64 {
		m = 64
	}

	k := int(float64(m) / float64(expectedItems) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64

	return &Bloom{
		bits:     make([]uint64, words),
		size:     uint64(words * 64),
		hashFns:  k,
		capacity: expectedItems,
	}
}

// Insert adds a hex-encoded identifier to the filter.
func (b *Bloom) Insert(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.getHashes(key) {
		idx := h % b.size
		b.bits[idx/64] |= 1 << (idx % 64)
	}
	b.count++
}

// Contains reports whether key might have been inserted.
func (b *Bloom) Contains(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.getHashes(key) {
		idx := h % b.size
		if b.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Clear resets the filter. Test-only; production use is insert-only.
func (b *Bloom) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.bits {
		b.bits[i] = 0
	}
	b.count = 0
}

// Count returns the number of Insert calls made (not the number of
// distinct items; duplicates insert harmlessly).
func (b *Bloom) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// getHashes generates b.hashFns hash values for key via double hashing:
// h(i) = h1 + i*h2.
func (b *Bloom) getHashes(key string) []uint64 {
	h1f := fnv.New64a()
	h1f.Write([]byte(key))
	h1 := h1f.Sum64()

	h2f := fnv.New64()
	h2f.Write([]byte(key))
	h2f.Write([]byte{0xff})
	h2 := h2f.Sum64()

	hashes := make([]uint64, b.hashFns)
	for i := 0; i < b.hashFns; i++ {
		hashes[i] = h1 + uint64(i)*h2
	}
	return hashes
}

// approximateLn returns a lookup-table approximation of ln(x) for the
// small range of false-positive rates this filter is ever configured with.
func approximateLn(x float64) float64 {
	switch {
	case x >= 0.1:
		return -2.303
	case x >= 0.05:
		return -2.996
	case x >= 0.01:
		return -4.605
	case x >= 0.005:
		return -5.298
	case x >= 0.001:
		return -6.908
	default:
		return -9.210
	}
}
