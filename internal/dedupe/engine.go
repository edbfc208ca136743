// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package dedupe

import (
	"github.com/tomtom215/relayer/internal/logging"
	"github.com/tomtom215/relayer/internal/relay"
)

// Store is the subset of the persistent store the engine needs: exact
// membership, archival on miss, and recent-id warm-up. Implemented by
// internal/store.Store.
type Store interface {
	Exists(hexID string) (bool, error)
	StoreEvent(event *relay.Event) error
	LoadRecentSuccessIDs(limit int) ([]string, error)
	ApproximateCount() (uint64, error)
}

// Metrics is the subset of the metrics registry the engine reports to.
// Optional: a nil Metrics disables reporting.
type Metrics interface {
	DuplicateFiltered()
}

// Params sizes the three in-memory layers.
type Params struct {
	HotSetSize    int
	BloomCapacity int
	LRUSize       int
}

// DefaultParams returns sizing consistent with a moderate single-relay
// deployment.
func DefaultParams() Params {
	return Params{
		HotSetSize:    10000,
		BloomCapacity: 1000000,
		LRUSize:       50000,
	}
}

// Engine composes the hot-set, bloom filter, LRU cache and persistent
// store into a single IsDuplicate decision, with write-through to the
// store on first sight of an event.
type Engine struct {
	bloom   *Bloom
	lru     *LRU
	hotSet  *HotSet
	store   Store
	metrics Metrics
}

// New creates a dedupe engine backed by store, sized by params.
func New(store Store, params Params) *Engine {
	return &Engine{
		bloom:  NewBloom(params.BloomCapacity, 0.01),
		lru:    NewLRU(params.LRUSize),
		hotSet: NewHotSet(params.HotSetSize),
		store:  store,
	}
}

// WithMetrics attaches a metrics sink and returns the engine for chaining.
func (e *Engine) WithMetrics(m Metrics) *Engine {
	e.metrics = m
	return e
}

// IsDuplicate implements the engine's decision order:
//
//  1. Hot-set contains -> true.
//  2. Bloom does not contain -> insert bloom, store the event, insert
//     hot-set, return false (definitely new).
//  3. LRU contains -> insert hot-set, return true.
//  4. Persistent store evt: family contains -> insert LRU + hot-set,
//     return true.
//  5. Otherwise: store the event, insert LRU + hot-set (bloom already
//     inserted at step 2), return false.
func (e *Engine) IsDuplicate(event *relay.Event) bool {
	id := event.ID

	if e.hotSet.Contains(id) {
		e.recordDuplicate()
		return true
	}

	if !e.bloom.Contains(id) {
		e.bloom.Insert(id)
		if err := e.store.StoreEvent(event); err != nil {
			logging.Error().Err(err).Str("event_id", id).Msg("dedupe: store write failed, treating event as new for this run")
		}
		e.hotSet.Insert(id)
		return false
	}

	if e.lru.Contains(id) {
		e.hotSet.Insert(id)
		e.recordDuplicate()
		return true
	}

	exists, err := e.store.Exists(id)
	if err != nil {
		logging.Error().Err(err).Str("event_id", id).Msg("dedupe: store exists check failed")
	} else if exists {
		e.lru.Add(id)
		e.hotSet.Insert(id)
		e.recordDuplicate()
		return true
	}

	if err := e.store.StoreEvent(event); err != nil {
		logging.Error().Err(err).Str("event_id", id).Msg("dedupe: store write failed, treating event as new for this run")
	}
	e.lru.Add(id)
	e.hotSet.Insert(id)
	return false
}

func (e *Engine) recordDuplicate() {
	if e.metrics != nil {
		e.metrics.DuplicateFiltered()
	}
}

// WarmFromDB seeds the hot-set, bloom and LRU layers from the store's
// success index so events already delivered downstream in a previous run
// are not re-emitted after restart.
func (e *Engine) WarmFromDB(limit int) error {
	ids, err := e.store.LoadRecentSuccessIDs(limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.bloom.Insert(id)
		e.lru.Add(id)
		e.hotSet.Insert(id)
	}
	logging.Info().Int("count", len(ids)).Msg("dedupe: warmed up from persistent store")
	return nil
}

// Stats summarizes the current size of each in-memory layer plus the
// store's diagnostic count.
type Stats struct {
	BloomSize             int
	LRUSize               int
	HotSetSize            int
	StoreApproximateCount uint64
}

// GetStats reports current layer sizes.
func (e *Engine) GetStats() Stats {
	approx, err := e.store.ApproximateCount()
	if err != nil {
		logging.Warn().Err(err).Msg("dedupe: approximate count failed")
	}
	return Stats{
		BloomSize:             e.bloom.Count(),
		LRUSize:               e.lru.Len(),
		HotSetSize:            e.hotSet.Len(),
		StoreApproximateCount: approx,
	}
}
