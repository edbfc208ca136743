// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package forwarder

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/relayer/internal/relay"
)

type fakeStore struct {
	mu     sync.Mutex
	marked []string
	fail   bool
}

func (s *fakeStore) MarkForwardSuccess(hexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errFake
	}
	s.marked = append(s.marked, hexID)
	return nil
}

var errFake = &fakeError{"fake store failure"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func testEvent(id string) *relay.Event {
	return &relay.Event{ID: id, PubKey: "p", Kind: 1, CreatedAt: 1, Content: "hello"}
}

// startTCPEcho starts a listener that reads one length-prefixed frame per
// accepted connection and records it, then closes the connection.
func startTCPEcho(t *testing.T) (addr string, received func() [][]byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var frames [][]byte

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var header [4]byte
				if _, err := io.ReadFull(conn, header[:]); err != nil {
					return
				}
				n := binary.BigEndian.Uint32(header[:])
				buf := make([]byte, n)
				if _, err := io.ReadFull(conn, buf); err != nil {
					return
				}
				mu.Lock()
				frames = append(frames, buf)
				mu.Unlock()
			}()
		}
	}()

	t.Cleanup(func() { ln.Close() })

	return ln.Addr().String(), func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		out := make([][]byte, len(frames))
		copy(out, frames)
		return out
	}
}

func TestForwardOneSucceedsOnTCPAndHTTP(t *testing.T) {
	t.Parallel()

	tcpAddr, received := startTCPEcho(t)

	httpCalled := make(chan struct{}, 1)
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpCalled <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer httpSrv.Close()

	store := &fakeStore{}
	events := make(chan *relay.Event, 1)

	f := New(events, store, Config{
		TCPEndpoints:  []string{tcpAddr},
		HTTPEndpoints: []string{httpSrv.URL},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.Serve(ctx)

	events <- testEvent("abc123")

	select {
	case <-httpCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http endpoint was never called")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.marked)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.marked) != 1 || store.marked[0] != "abc123" {
		t.Fatalf("marked = %v; want [abc123]", store.marked)
	}

	if len(received()) != 1 {
		t.Errorf("tcp endpoint received %d frames; want 1", len(received()))
	}
}

func TestForwardOneDoesNotMarkSuccessWhenHTTPFails(t *testing.T) {
	t.Parallel()

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer httpSrv.Close()

	store := &fakeStore{}
	events := make(chan *relay.Event, 1)

	f := New(events, store, Config{
		HTTPEndpoints: []string{httpSrv.URL},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Serve(ctx)

	events <- testEvent("willfail")

	time.Sleep(200 * time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.marked) != 0 {
		t.Errorf("marked = %v; want none, since the HTTP endpoint returned 500", store.marked)
	}
}

func TestForwardOneWithNoEndpointsStillMarksSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	events := make(chan *relay.Event, 1)

	f := New(events, store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Serve(ctx)

	events <- testEvent("noop")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.marked)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.marked) != 1 {
		t.Errorf("marked = %v; want exactly one success with zero configured endpoints", store.marked)
	}
}
