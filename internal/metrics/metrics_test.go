// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventsProcessedIncrements(t *testing.T) {
	before := testutil.ToFloat64(eventsProcessedTotal)

	r := NewRegistry()
	r.EventsProcessed()

	after := testutil.ToFloat64(eventsProcessedTotal)
	if after != before+1 {
		t.Errorf("events_processed_total = %v; want %v", after, before+1)
	}
}

func TestDuplicateFilteredIncrements(t *testing.T) {
	before := testutil.ToFloat64(duplicatesFilteredTotal)

	r := NewRegistry()
	r.DuplicateFiltered()

	after := testutil.ToFloat64(duplicatesFilteredTotal)
	if after != before+1 {
		t.Errorf("duplicates_filtered_total = %v; want %v", after, before+1)
	}
}

func TestEventsInQueueSetsGauge(t *testing.T) {
	r := NewRegistry()
	r.EventsInQueue(42)

	if got := testutil.ToFloat64(eventsInQueue); got != 42 {
		t.Errorf("events_in_queue = %v; want 42", got)
	}
}

func TestSetMemoryUsageAndActiveConnections(t *testing.T) {
	r := NewRegistry()
	r.SetMemoryUsageMB(128.5)
	r.SetActiveConnections(7)

	if got := testutil.ToFloat64(memoryUsageMB); got != 128.5 {
		t.Errorf("memory_usage_mb = %v; want 128.5", got)
	}
	if got := testutil.ToFloat64(activeConnections); got != 7 {
		t.Errorf("active_connections = %v; want 7", got)
	}
}

func TestProcessingLatencyObserves(t *testing.T) {
	r := NewRegistry()
	// Observing should not panic and should affect the histogram's sample count.
	r.ProcessingLatency(150 * time.Millisecond)
}
