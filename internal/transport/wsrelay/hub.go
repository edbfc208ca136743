// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package wsrelay implements the WebSocket fanout hubs for the event
// stream (/ws) and the encrypted per-subscriber fanout stream (/fanout),
// each broadcasting a single JSON text frame per message to every
// connected subscriber in deterministic order.
package wsrelay

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/relayer/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var clientIDCounter atomic.Uint64

// client is a single WebSocket subscriber.
type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   clientIDCounter.Add(1),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(unregister chan<- *client) {
	defer func() {
		unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub broadcasts JSON-marshaled messages of type T to every connected
// subscriber, in deterministic client-ID order, with graceful
// per-connection teardown on full send buffers or closed connections.
type Hub[T any] struct {
	name string

	mu      sync.Mutex
	clients map[*client]struct{}

	broadcast  chan T
	register   chan *client
	unregister chan *client

	upgrader websocket.Upgrader
}

// NewHub creates a Hub named name (used for logging/String()).
func NewHub[T any](name string, checkOrigin func(*http.Request) bool) *Hub[T] {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub[T]{
		name:       name,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan T, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      checkOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// String implements suture.Service / fmt.Stringer.
func (h *Hub[T]) String() string {
	return h.name
}

// Publish enqueues a message for broadcast, dropping it if the internal
// buffer is full rather than blocking the caller.
func (h *Hub[T]) Publish(msg T) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("hub", h.name).Msg("wsrelay: broadcast buffer full, dropping message")
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// it with the hub.
func (h *Hub[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Str("hub", h.name).Msg("wsrelay: upgrade failed")
		return
	}

	c := newClient(conn)
	h.register <- c
	go c.writePump()
	go c.readPump(h.unregister)
}

// Serve runs the hub's event loop until ctx is canceled, at which point
// all connected clients are closed.
func (h *Hub[T]) Serve(ctx context.Context) error {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Info().Str("hub", h.name).Int("clients", n).Msg("wsrelay: client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Info().Str("hub", h.name).Int("clients", n).Msg("wsrelay: client disconnected")

		case msg := <-h.broadcast:
			h.broadcastOne(msg)
		}
	}
}

func (h *Hub[T]) broadcastOne(msg T) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("hub", h.name).Msg("wsrelay: marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	var stale []*client
	for _, c := range ordered {
		select {
		case c.send <- frame:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	for _, c := range ordered {
		close(c.send)
		delete(h.clients, c)
	}
	logging.Info().Str("hub", h.name).Msg("wsrelay: closed all clients")
}

// ClientCount returns the number of currently connected subscribers.
func (h *Hub[T]) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
