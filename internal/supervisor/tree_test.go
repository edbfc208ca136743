// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingService struct {
	name  string
	calls atomic.Int32
}

func (s *countingService) String() string { return s.name }

func (s *countingService) Serve(ctx context.Context) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeRunsAddedService(t *testing.T) {
	t.Parallel()

	tree := New(discardLogger(), DefaultTreeConfig())
	svc := &countingService{name: "svc-a"}
	tree.Add(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = tree.Serve(ctx)

	if svc.calls.Load() == 0 {
		t.Error("service was never started by the supervisor tree")
	}
}

func TestTreeAppliesDefaultsForZeroConfig(t *testing.T) {
	t.Parallel()

	tree := New(discardLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v; want 5.0", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v; want 10s", tree.config.ShutdownTimeout)
	}
}
