// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

// Package main is the entry point for the relay aggregator.
//
// # Application Architecture
//
// main initializes components in the following order:
//
//  1. Configuration: layered Koanf load (defaults, optional YAML file,
//     RELAYER_-prefixed environment overrides)
//  2. Logging: zerolog, bridged to slog for the suture event hook
//  3. Store: the BadgerDB persistent archive and forward-success index
//  4. Dedup engine: hot-set/bloom/LRU in front of the store, warmed from
//     the store's most recent success index
//  5. Subscription service (optional): Postgres-backed bot/follower
//     fanout, started only when postgres.dsn (RELAYER_POSTGRES_DSN) is
//     configured
//  6. Router, forwarder and WebSocket hubs: wired together over channels
//     and bound into a single flat supervisor tree
//  7. Admin HTTP server: health and Prometheus endpoints
//  8. WebSocket server: mounts the event hub at /ws and, when the
//     subscription service is enabled, the fanout hub at /fanout
//
// # Ingestion
//
// main does not dial upstream relays itself; a real relay-pool client
// is out of this binary's scope, so main seeds the pipeline with an
// in-process demo producer that can be swapped for a real ingest source
// without touching the router, forwarder or hubs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/relayer/internal/config"
	"github.com/tomtom215/relayer/internal/dedupe"
	"github.com/tomtom215/relayer/internal/forwarder"
	"github.com/tomtom215/relayer/internal/logging"
	"github.com/tomtom215/relayer/internal/metrics"
	"github.com/tomtom215/relayer/internal/relay"
	"github.com/tomtom215/relayer/internal/router"
	"github.com/tomtom215/relayer/internal/store"
	"github.com/tomtom215/relayer/internal/subscription"
	"github.com/tomtom215/relayer/internal/supervisor"
	"github.com/tomtom215/relayer/internal/transport/wsrelay"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (overrides CONFIG_PATH and the default search paths)")
	flag.Parse()
	if *configPath != "" {
		os.Setenv(config.ConfigPathEnvVar, *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayer: load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Monitoring.LogLevel,
		Format:    cfg.Monitoring.LogFormat,
		Timestamp: true,
		Output:    os.Stderr,
	})
	slogLogger := logging.NewSlogLogger()

	db, err := store.Open(cfg.Deduplication.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing store")
		}
	}()

	registry := metrics.NewRegistry()

	dedupeEngine := dedupe.New(db, dedupe.Params{
		HotSetSize:    cfg.Deduplication.HotSetSize,
		BloomCapacity: cfg.Deduplication.BloomCapacity,
		LRUSize:       cfg.Deduplication.LRUSize,
	}).WithMetrics(registry)

	if err := dedupeEngine.WarmFromDB(cfg.Deduplication.LRUSize); err != nil {
		logging.Warn().Err(err).Msg("dedup warm-up from store failed; starting cold")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var subService *subscription.Service
	if cfg.Postgres.Enabled() {
		subService, err = subscription.New(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConnections)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start subscription service")
		}
		logging.Info().Msg("subscription/fanout service enabled")
	} else {
		logging.Info().Msg("postgres.dsn not set; subscription/fanout service disabled")
	}

	ingest := make(chan *relay.Event, 256)
	downstream := make(chan *relay.Event, 256)

	var fanout chan subscription.FanoutMessage
	var fanoutHub *wsrelay.Hub[subscription.FanoutMessage]
	if subService != nil {
		fanout = make(chan subscription.FanoutMessage, 256)
		fanoutHub = wsrelay.NewHub[subscription.FanoutMessage]("fanout-hub", nil)
	}

	var sub router.SubscriptionService
	if subService != nil {
		sub = subService
	}

	r := router.New(ingest, downstream, fanout, sub, dedupeEngine, router.Config{
		BatchSize:    cfg.Output.BatchSize,
		MaxLatency:   time.Duration(cfg.Output.MaxLatencyMS) * time.Millisecond,
		AllowedKinds: cfg.Filters.AllowedKinds,
	}).WithMetrics(registry)

	eventsHub := wsrelay.NewHub[*relay.Event]("events-hub", nil)

	fwdEvents := make(chan *relay.Event, 256)
	fwd := forwarder.New(fwdEvents, db, forwarder.Config{
		TCPEndpoints:   cfg.Output.DownstreamTCP,
		HTTPEndpoints:  cfg.Output.DownstreamREST,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}).WithMetrics(registry)

	tree := supervisor.New(slogLogger, supervisor.DefaultTreeConfig())
	tree.Add(r)
	tree.Add(fwd)
	tree.Add(eventsHub)
	if fanoutHub != nil {
		tree.Add(fanoutHub)
	}
	tree.Add(newAdminServer(cfg.Monitoring.PrometheusPort))
	tree.Add(newFanoutGateway(downstream, fwdEvents, eventsHub))
	tree.Add(newDemoProducer(ingest, cfg.Filters.AllowedKinds))
	if cfg.Output.WebsocketEnabled {
		tree.Add(newWSServer(cfg.Output.WebsocketPort, eventsHub, fanoutHub))
	}
	counters := []clientCounter{eventsHub}
	if fanoutHub != nil {
		counters = append(counters, fanoutHub)
	}
	tree.Add(newStatsReporter(registry, counters...))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	logging.Info().Msg("relayer stopped gracefully")
}

// fanoutGateway forwards each router-emitted batch event to both the
// downstream forwarder and the public events WebSocket hub, decoupling
// the router's single downstream channel from the two independent
// consumers that need a copy of every event.
type fanoutGateway struct {
	downstream <-chan *relay.Event
	fwd        chan<- *relay.Event
	hub        *wsrelay.Hub[*relay.Event]
}

func newFanoutGateway(downstream <-chan *relay.Event, fwd chan<- *relay.Event, hub *wsrelay.Hub[*relay.Event]) *fanoutGateway {
	return &fanoutGateway{downstream: downstream, fwd: fwd, hub: hub}
}

func (g *fanoutGateway) String() string { return "fanout-gateway" }

func (g *fanoutGateway) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-g.downstream:
			if !ok {
				return nil
			}
			g.hub.Publish(event)
			select {
			case g.fwd <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// adminServer exposes health and Prometheus metrics endpoints, wrapped
// as a supervised service.
type adminServer struct {
	srv *http.Server
}

func newAdminServer(port int) *adminServer {
	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &adminServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (a *adminServer) String() string { return "admin-http" }

func (a *adminServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// wsServer exposes the hubs' broadcast streams to WebSocket subscribers:
// /ws for the public event stream, /fanout for the encrypted
// per-subscriber stream when the subscription service is enabled.
type wsServer struct {
	srv *http.Server
}

func newWSServer(port int, eventsHub *wsrelay.Hub[*relay.Event], fanoutHub *wsrelay.Hub[subscription.FanoutMessage]) *wsServer {
	mux := chi.NewRouter()
	mux.Handle("/ws", eventsHub)
	if fanoutHub != nil {
		mux.Handle("/fanout", fanoutHub)
	}

	return &wsServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (s *wsServer) String() string { return "websocket-server" }

func (s *wsServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("websocket server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// clientCounter is implemented by *wsrelay.Hub[T] for any payload type T.
type clientCounter interface {
	ClientCount() int
}

// statsGauges is the subset of the metrics registry statsReporter reports
// to. Implemented by *metrics.Registry.
type statsGauges interface {
	SetActiveConnections(n int)
	SetMemoryUsageMB(mb float64)
}

// statsReporter periodically samples the connected WebSocket client count
// across every hub and the process's Go heap allocation, publishing
// both to the metrics registry.
type statsReporter struct {
	metrics statsGauges
	hubs    []clientCounter
}

func newStatsReporter(m statsGauges, hubs ...clientCounter) *statsReporter {
	return &statsReporter{metrics: m, hubs: hubs}
}

func (s *statsReporter) String() string { return "stats-reporter" }

func (s *statsReporter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.report()
		}
	}
}

func (s *statsReporter) report() {
	total := 0
	for _, h := range s.hubs {
		total += h.ClientCount()
	}
	s.metrics.SetActiveConnections(total)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.metrics.SetMemoryUsageMB(float64(mem.Alloc) / (1024 * 1024))
}

// demoProducer seeds the pipeline with synthetic events at a steady rate,
// standing in for a real upstream relay-pool client so the
// router/dedupe/forwarder/hub chain has something to process end to end.
type demoProducer struct {
	ingest chan<- *relay.Event
	kinds  []uint16
}

func newDemoProducer(ingest chan<- *relay.Event, kinds []uint16) *demoProducer {
	if len(kinds) == 0 {
		kinds = []uint16{30931}
	}
	return &demoProducer{ingest: ingest, kinds: kinds}
}

func (d *demoProducer) String() string { return "demo-ingest-producer" }

func (d *demoProducer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var n int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n++
			evt := &relay.Event{
				ID:        fmt.Sprintf("%064x", n),
				PubKey:    fmt.Sprintf("%064x", 1),
				Kind:      d.kinds[int(n)%len(d.kinds)],
				CreatedAt: time.Now().Unix(),
				Content:   "demo",
			}
			select {
			case d.ingest <- evt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
