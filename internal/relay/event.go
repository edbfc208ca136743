// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package relay defines the event format ingested from, and emitted
// towards, upstream and downstream relay participants.
package relay

import (
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// Event is an immutable signed record as produced by an upstream relay.
// The core pipeline never inspects Tags or Sig; they are carried through
// verbatim so downstream consumers that do care about them still receive
// a faithful copy.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	Kind      uint16     `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Content   string     `json:"content"`
	Tags      [][]string `json:"tags,omitempty"`
	Sig       string     `json:"sig,omitempty"`
}

// IDBytes decodes the hex event ID into raw bytes. The dedup bloom layer
// does not use it; it is keyed on the hex string form.
func (e *Event) IDBytes() ([]byte, error) {
	b, err := hex.DecodeString(e.ID)
	if err != nil {
		return nil, fmt.Errorf("decode event id %q: %w", e.ID, err)
	}
	return b, nil
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return b, nil
}

// Unmarshal decodes JSON bytes into an Event.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}

// Validate checks that the fields the core pipeline relies on are present
// and well-formed. It does not verify the cryptographic signature; that is
// the upstream relay's responsibility.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event: missing id")
	}
	if _, err := hex.DecodeString(e.ID); err != nil {
		return fmt.Errorf("event: id is not valid hex: %w", err)
	}
	if e.PubKey == "" {
		return fmt.Errorf("event: missing pubkey")
	}
	if e.CreatedAt <= 0 {
		return fmt.Errorf("event: created_at must be positive")
	}
	return nil
}
