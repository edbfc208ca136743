// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package wsrelay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testMessage struct {
	Value string `json:"value"`
}

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	t.Parallel()

	hub := NewHub[testMessage]("test-hub", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d; want 1", hub.ClientCount())
	}

	hub.Publish(testMessage{Value: "hello"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got testMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Value != "hello" {
		t.Errorf("got value %q; want %q", got.Value, "hello")
	}
}

func TestHubDisconnectRemovesClient(t *testing.T) {
	t.Parallel()

	hub := NewHub[testMessage]("test-hub-2", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Serve(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after disconnect; want 0", hub.ClientCount())
	}
}

func TestHubPublishDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	hub := NewHub[testMessage]("test-hub-3", nil)
	for i := 0; i < 300; i++ {
		hub.Publish(testMessage{Value: "x"})
	}
	// no panic, no deadlock: excess publishes beyond the 256-deep buffer
	// are dropped rather than blocking the caller.
}
