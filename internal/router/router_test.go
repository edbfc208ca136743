// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package router

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/relayer/internal/relay"
)

// passthroughDedup treats every event as novel.
type passthroughDedup struct{}

func (passthroughDedup) IsDuplicate(*relay.Event) bool { return false }

// seenDedup treats ids in seen as duplicates.
type seenDedup struct{ seen map[string]bool }

func (d seenDedup) IsDuplicate(e *relay.Event) bool {
	if d.seen[e.ID] {
		return true
	}
	d.seen[e.ID] = true
	return false
}

func evt(id string, createdAt int64) *relay.Event {
	return &relay.Event{ID: id, PubKey: "p", Kind: 30931, CreatedAt: createdAt, Content: "c"}
}

func TestRouterReordersWithinBatch(t *testing.T) {
	t.Parallel()

	ingest := make(chan *relay.Event, 10)
	downstream := make(chan *relay.Event, 10)

	r := New(ingest, downstream, nil, nil, passthroughDedup{}, Config{
		BatchSize:  3,
		MaxLatency: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	ingest <- evt("e1", 1005)
	ingest <- evt("e2", 1001)
	ingest <- evt("e3", 1003)

	var got []int64
	for i := 0; i < 3; i++ {
		select {
		case e := <-downstream:
			got = append(got, e.CreatedAt)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for downstream event %d", i)
		}
	}

	want := []int64{1001, 1003, 1005}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("downstream order = %v; want %v", got, want)
			break
		}
	}
}

func TestRouterLatencyFlush(t *testing.T) {
	t.Parallel()

	ingest := make(chan *relay.Event, 10)
	downstream := make(chan *relay.Event, 10)

	r := New(ingest, downstream, nil, nil, passthroughDedup{}, Config{
		BatchSize:  100,
		MaxLatency: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Serve(ctx)

	start := time.Now()
	ingest <- evt("only", 1)

	select {
	case <-downstream:
		elapsed := time.Since(start)
		if elapsed < 30*time.Millisecond {
			t.Errorf("flush happened after %v; expected to wait roughly the max_latency window", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for latency-triggered flush")
	}
}

func TestRouterDiscardsDisallowedKind(t *testing.T) {
	t.Parallel()

	ingest := make(chan *relay.Event, 10)
	downstream := make(chan *relay.Event, 10)

	r := New(ingest, downstream, nil, nil, passthroughDedup{}, Config{
		BatchSize:    1,
		MaxLatency:   time.Second,
		AllowedKinds: []uint16{1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Serve(ctx)

	disallowed := evt("x", 1)
	disallowed.Kind = 999
	ingest <- disallowed

	select {
	case e := <-downstream:
		t.Fatalf("got unexpected downstream event %v; disallowed kind should be discarded silently", e)
	case <-time.After(150 * time.Millisecond):
		// expected: nothing emitted
	}
}

func TestRouterDiscardsDuplicates(t *testing.T) {
	t.Parallel()

	ingest := make(chan *relay.Event, 10)
	downstream := make(chan *relay.Event, 10)
	dedup := seenDedup{seen: make(map[string]bool)}

	r := New(ingest, downstream, nil, nil, dedup, Config{
		BatchSize:  1,
		MaxLatency: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Serve(ctx)

	ingest <- evt("dup", 1000)
	<-downstream

	ingest <- evt("dup", 1000)
	select {
	case e := <-downstream:
		t.Fatalf("got unexpected second downstream emission %v for a duplicate event", e)
	case <-time.After(150 * time.Millisecond):
		// expected: duplicate discarded
	}
}

func TestRouterFinalFlushOnClose(t *testing.T) {
	t.Parallel()

	ingest := make(chan *relay.Event, 10)
	downstream := make(chan *relay.Event, 10)

	r := New(ingest, downstream, nil, nil, passthroughDedup{}, Config{
		BatchSize:  100,
		MaxLatency: time.Hour,
	})

	ingest <- evt("a", 5)
	ingest <- evt("b", 3)
	close(ingest)

	if err := r.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	close(downstream)
	var got []int64
	for e := range downstream {
		got = append(got, e.CreatedAt)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("final flush order = %v; want [3 5]", got)
	}
}
