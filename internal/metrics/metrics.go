// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of novel events successfully routed downstream.",
		},
	)

	duplicatesFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicates_filtered_total",
			Help: "Total number of events discarded as duplicates by the dedup engine.",
		},
	)

	processingLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "processing_latency_seconds",
			Help:    "Time taken to emit a batch on a timer-triggered flush.",
			Buckets: prometheus.DefBuckets,
		},
	)

	memoryUsageMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_mb",
			Help: "Current Go heap allocation (runtime.MemStats.Alloc) in megabytes.",
		},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Current number of connected WebSocket subscribers across all hubs.",
		},
	)

	eventsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "events_in_queue",
			Help: "Current number of events buffered in the router's pending batch.",
		},
	)
)

// Registry is the process-wide metrics sink. Its zero value is usable:
// every method writes to the package-level Prometheus collectors above,
// so multiple Registry values all observe the same process metrics.
type Registry struct{}

// NewRegistry returns a Registry bound to the process's default Prometheus
// registry (via promauto).
func NewRegistry() *Registry {
	return &Registry{}
}

// EventsProcessed implements router.Metrics and forwarder.Metrics.
func (*Registry) EventsProcessed() {
	eventsProcessedTotal.Inc()
}

// DuplicateFiltered implements dedupe.Metrics.
func (*Registry) DuplicateFiltered() {
	duplicatesFilteredTotal.Inc()
}

// ProcessingLatency implements router.Metrics.
func (*Registry) ProcessingLatency(d time.Duration) {
	processingLatencySeconds.Observe(d.Seconds())
}

// EventsInQueue implements router.Metrics.
func (*Registry) EventsInQueue(n int) {
	eventsInQueue.Set(float64(n))
}

// SetMemoryUsageMB records the current memory usage in megabytes.
func (*Registry) SetMemoryUsageMB(mb float64) {
	memoryUsageMB.Set(mb)
}

// SetActiveConnections records the current WebSocket subscriber count
// across all hubs.
func (*Registry) SetActiveConnections(n int) {
	activeConnections.Set(float64(n))
}
