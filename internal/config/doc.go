// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package config loads the relay aggregator's configuration through a
// layered koanf stack: compiled-in defaults, an optional YAML file, then
// RELAYER_-prefixed environment variable overrides.
package config
