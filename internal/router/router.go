// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package router implements the time-ordering batcher: it consumes an
// ingest stream of events, applies kind-based allowlist filtering,
// deduplicates, accumulates novel events, and periodically emits
// timestamp-sorted batches downstream (and, if configured, to a fanout
// stream).
package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/relayer/internal/logging"
	"github.com/tomtom215/relayer/internal/relay"
	"github.com/tomtom215/relayer/internal/subscription"
)

// Deduplicator answers whether an event has been seen before, recording
// it if not. Implemented by *dedupe.Engine.
type Deduplicator interface {
	IsDuplicate(event *relay.Event) bool
}

// SubscriptionService produces encrypted fanout messages for an event.
// Implemented by *subscription.Service.
type SubscriptionService interface {
	FanoutForEvent(ctx context.Context, event *relay.Event) ([]subscription.FanoutMessage, error)
}

// Metrics is the subset of the metrics registry the router reports to.
type Metrics interface {
	EventsProcessed()
	ProcessingLatency(d time.Duration)
	EventsInQueue(n int)
}

// Config sizes the batcher.
type Config struct {
	// BatchSize is the number of accumulated events that triggers an
	// immediate flush.
	BatchSize int

	// MaxLatency bounds the time a novel event can wait in the pending
	// buffer before a flush is forced.
	MaxLatency time.Duration

	// AllowedKinds, if non-empty, restricts which event kinds are
	// accepted; all other kinds are silently discarded. Empty/unset
	// means all kinds pass.
	AllowedKinds []uint16
}

// pending wraps an event with the created_at it was accepted with, purely
// so flushBatch can sort without re-reading the event struct's field via
// reflection; kept as a distinct type to mirror the source algorithm's
// EventWrapper.
type pending struct {
	event     *relay.Event
	createdAt int64
}

// Router is the event router / batcher. It implements suture.Service:
// Serve(ctx) error and String() string.
type Router struct {
	dedupe       Deduplicator
	subscription SubscriptionService
	cfg          Config
	metrics      Metrics

	allowed map[uint16]struct{}

	mu      sync.Mutex
	pending []pending

	downstream chan<- *relay.Event
	fanout     chan<- subscription.FanoutMessage
	ingest     <-chan *relay.Event
}

// New creates a router consuming ingest and emitting to downstream (and,
// if fanout and sub are both non-nil, to fanout as well).
func New(
	ingest <-chan *relay.Event,
	downstream chan<- *relay.Event,
	fanout chan<- subscription.FanoutMessage,
	sub SubscriptionService,
	dedupe Deduplicator,
	cfg Config,
) *Router {
	var allowed map[uint16]struct{}
	if len(cfg.AllowedKinds) > 0 {
		allowed = make(map[uint16]struct{}, len(cfg.AllowedKinds))
		for _, k := range cfg.AllowedKinds {
			allowed[k] = struct{}{}
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = 200 * time.Millisecond
	}

	return &Router{
		dedupe:       dedupe,
		subscription: sub,
		cfg:          cfg,
		allowed:      allowed,
		ingest:       ingest,
		downstream:   downstream,
		fanout:       fanout,
	}
}

// WithMetrics attaches a metrics sink and returns the router for chaining.
func (r *Router) WithMetrics(m Metrics) *Router {
	r.metrics = m
	return r
}

// String implements suture.Service / fmt.Stringer.
func (r *Router) String() string {
	return "event-router"
}

// Serve runs the router's main loop until ctx is canceled or the ingest
// channel is closed, flushing any buffered events before returning.
func (r *Router) Serve(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.MaxLatency)
	defer timer.Stop()
	lastFlush := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.flushAll(ctx)
			return ctx.Err()

		case event, ok := <-r.ingest:
			if !ok {
				r.flushAll(ctx)
				return nil
			}
			r.handleEvent(event)

			if r.pendingLen() >= r.cfg.BatchSize {
				r.flushBatch(ctx)
				lastFlush = time.Now()
				resetTimer(timer, r.cfg.MaxLatency)
			}

		case <-timer.C:
			if r.pendingLen() > 0 && time.Since(lastFlush) >= r.cfg.MaxLatency {
				start := time.Now()
				r.flushBatch(ctx)
				r.recordLatency(time.Since(start))
				lastFlush = time.Now()
			}
			resetTimer(timer, r.cfg.MaxLatency)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// handleEvent applies the kind allowlist and dedup check, then appends
// novel events to the pending buffer.
func (r *Router) handleEvent(event *relay.Event) {
	if r.allowed != nil {
		if _, ok := r.allowed[event.Kind]; !ok {
			return
		}
	}

	if r.dedupe.IsDuplicate(event) {
		return
	}

	r.mu.Lock()
	r.pending = append(r.pending, pending{event: event, createdAt: event.CreatedAt})
	n := len(r.pending)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.EventsInQueue(n)
	}
}

func (r *Router) pendingLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// flushBatch drains min(BatchSize, len(pending)) events, sorted ascending
// by created_at, and emits them in order.
func (r *Router) flushBatch(ctx context.Context) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	sort.SliceStable(r.pending, func(i, j int) bool {
		return r.pending[i].createdAt < r.pending[j].createdAt
	})

	n := r.cfg.BatchSize
	if n > len(r.pending) {
		n = len(r.pending)
	}
	batch := make([]pending, n)
	copy(batch, r.pending[:n])
	r.pending = r.pending[n:]
	r.mu.Unlock()

	r.emit(ctx, batch)
}

// flushAll drains the entire pending buffer, sorted, used on shutdown.
func (r *Router) flushAll(ctx context.Context) {
	r.mu.Lock()
	sort.SliceStable(r.pending, func(i, j int) bool {
		return r.pending[i].createdAt < r.pending[j].createdAt
	})
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) > 0 {
		logging.Info().Int("count", len(batch)).Msg("router: flushing all remaining events on shutdown")
	}
	r.emit(ctx, batch)
}

// emit sends each event in batch, in order, first to the fanout channel
// (if configured) then to the downstream channel. Errors are logged, not
// propagated: fanout and downstream delivery are both best-effort from
// the router's perspective.
func (r *Router) emit(ctx context.Context, batch []pending) {
	for _, p := range batch {
		if r.fanout != nil && r.subscription != nil {
			messages, err := r.subscription.FanoutForEvent(ctx, p.event)
			if err != nil {
				logging.Error().Err(err).Str("event_id", p.event.ID).Msg("router: fanout_for_event failed")
			} else {
				for _, m := range messages {
					select {
					case r.fanout <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		select {
		case r.downstream <- p.event:
		case <-ctx.Done():
			return
		}

		if r.metrics != nil {
			r.metrics.EventsProcessed()
		}
	}
}

func (r *Router) recordLatency(d time.Duration) {
	if r.metrics != nil {
		r.metrics.ProcessingLatency(d)
	}
}
