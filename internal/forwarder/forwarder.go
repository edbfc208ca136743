// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package forwarder delivers batched events to downstream TCP and HTTP
// endpoints in parallel, marking an event's forward success only once
// every configured endpoint has accepted it.
package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/relayer/internal/logging"
	"github.com/tomtom215/relayer/internal/relay"
)

// SuccessMarker records that an event was fully delivered downstream.
// Implemented by *store.Store.
type SuccessMarker interface {
	MarkForwardSuccess(hexID string) error
}

// Metrics is the subset of the metrics registry the forwarder reports to.
type Metrics interface {
	EventsProcessed()
}

// Config lists the downstream endpoints events are forwarded to.
type Config struct {
	// TCPEndpoints are dialed with a length-prefixed JSON frame per event.
	TCPEndpoints []string

	// HTTPEndpoints receive a POST with the raw event JSON as the body.
	HTTPEndpoints []string

	// DialTimeout bounds each TCP connection attempt.
	DialTimeout time.Duration

	// RequestTimeout bounds each HTTP POST.
	RequestTimeout time.Duration
}

// Forwarder consumes a stream of events and fans each one out to every
// configured downstream endpoint in parallel.
type Forwarder struct {
	cfg     Config
	store   SuccessMarker
	metrics Metrics
	client  *http.Client
	dialer  *net.Dialer

	events <-chan *relay.Event
}

// New creates a Forwarder consuming events from the given channel.
func New(events <-chan *relay.Event, store SuccessMarker, cfg Config) *Forwarder {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Forwarder{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
		events: events,
	}
}

// WithMetrics attaches a metrics sink and returns the forwarder for chaining.
func (f *Forwarder) WithMetrics(m Metrics) *Forwarder {
	f.metrics = m
	return f
}

// String implements suture.Service / fmt.Stringer.
func (f *Forwarder) String() string {
	return "downstream-forwarder"
}

// Serve runs the forwarder's main loop until ctx is canceled or the events
// channel is closed.
func (f *Forwarder) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-f.events:
			if !ok {
				return nil
			}
			f.forwardOne(ctx, event)
		}
	}
}

// forwardOne fans event out to every configured endpoint in parallel and,
// if and only if every delivery succeeded, marks it as forwarded.
func (f *Forwarder) forwardOne(ctx context.Context, event *relay.Event) {
	payload, err := event.Marshal()
	if err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("forwarder: marshal failed")
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, endpoint := range f.cfg.TCPEndpoints {
		endpoint := endpoint
		g.Go(func() error {
			return f.forwardViaTCP(gctx, endpoint, payload)
		})
	}
	for _, endpoint := range f.cfg.HTTPEndpoints {
		endpoint := endpoint
		g.Go(func() error {
			return f.forwardViaHTTP(gctx, endpoint, payload)
		})
	}

	if err := g.Wait(); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("forwarder: delivery failed")
		return
	}

	if f.store != nil {
		if err := f.store.MarkForwardSuccess(event.ID); err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Msg("forwarder: mark_forward_success failed")
		}
	}

	if f.metrics != nil {
		f.metrics.EventsProcessed()
	}
}

// forwardViaTCP dials endpoint and writes a 4-byte big-endian length prefix
// followed by the JSON payload.
func (f *Forwarder) forwardViaTCP(ctx context.Context, endpoint string, payload []byte) error {
	conn, err := f.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return fmt.Errorf("forwarder: dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := conn.Write(header[:]); err != nil {
		return fmt.Errorf("forwarder: write length prefix to %s: %w", endpoint, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("forwarder: write payload to %s: %w", endpoint, err)
	}
	return nil
}

// forwardViaHTTP POSTs payload to endpoint; any non-2xx response is an error.
func (f *Forwarder) forwardViaHTTP(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("forwarder: build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forwarder: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forwarder: %s returned status %d", endpoint, resp.StatusCode)
	}
	return nil
}
