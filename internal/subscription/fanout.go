// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package subscription

// FanoutMessage is a per-subscriber encrypted copy of an event. The
// ciphertext field is named Payload throughout this implementation.
type FanoutMessage struct {
	TargetPubKey    string `json:"target_pubkey"`
	BotPubKey       string `json:"bot_pubkey"`
	Kind            uint16 `json:"kind"`
	OriginalEventID string `json:"original_event_id"`
	Payload         string `json:"payload"`
}
