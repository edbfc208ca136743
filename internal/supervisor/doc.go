// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package supervisor wraps a suture supervisor tree binding the router,
// downstream forwarder, WebSocket hubs, and admin HTTP server as
// supervised services, restarting any one of them independently if it
// exits with an error.
package supervisor
