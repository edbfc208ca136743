// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package metrics exposes the relay aggregator's Prometheus instrumentation:
// event throughput, dedup effectiveness, batch processing latency, memory
// usage, active WebSocket connections, and router queue depth.
package metrics
