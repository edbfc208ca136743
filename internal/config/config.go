// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package config

import (
	"fmt"
	"time"
)

// Config holds the full configuration for the relay aggregator.
type Config struct {
	Relay         RelayConfig         `koanf:"relay"`
	Deduplication DeduplicationConfig `koanf:"deduplication"`
	Output        OutputConfig        `koanf:"output"`
	Filters       FiltersConfig       `koanf:"filters"`
	Postgres      PostgresConfig      `koanf:"postgres"`
	Monitoring    MonitoringConfig    `koanf:"monitoring"`
}

// RelayConfig configures the upstream relay pool.
type RelayConfig struct {
	BootstrapRelays       []string      `koanf:"bootstrap_relays"`
	MaxConnections        int           `koanf:"max_connections"`
	HealthCheckInterval   time.Duration `koanf:"health_check_interval_s"`
}

// DeduplicationConfig sizes the four dedup layers and the persistent store.
type DeduplicationConfig struct {
	HotSetSize    int    `koanf:"hotset_size"`
	BloomCapacity int    `koanf:"bloom_capacity"`
	LRUSize       int    `koanf:"lru_size"`
	StorePath     string `koanf:"store_path"`
}

// OutputConfig configures the batcher and egress transports.
type OutputConfig struct {
	WebsocketEnabled bool     `koanf:"websocket_enabled"`
	WebsocketPort    int      `koanf:"websocket_port"`
	DownstreamTCP    []string `koanf:"downstream_tcp"`
	DownstreamREST   []string `koanf:"downstream_rest"`
	BatchSize        int      `koanf:"batch_size"`
	MaxLatencyMS     int      `koanf:"max_latency_ms"`
}

// FiltersConfig restricts which event kinds the router accepts.
type FiltersConfig struct {
	AllowedKinds []uint16 `koanf:"allowed_kinds"`
}

// PostgresConfig enables the subscription/fanout service when DSN is set.
type PostgresConfig struct {
	DSN            string `koanf:"dsn"`
	MaxConnections int    `koanf:"max_connections"`
}

// MonitoringConfig configures observability endpoints and logging.
type MonitoringConfig struct {
	PrometheusPort int    `koanf:"prometheus_port"`
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
}

// Enabled reports whether the optional subscription/fanout service
// should be started.
func (p PostgresConfig) Enabled() bool {
	return p.DSN != ""
}

func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			BootstrapRelays:     nil,
			MaxConnections:      10,
			HealthCheckInterval: 30 * time.Second,
		},
		Deduplication: DeduplicationConfig{
			HotSetSize:    10000,
			BloomCapacity: 1000000,
			LRUSize:       50000,
			StorePath:     "/data/relayer/store",
		},
		Output: OutputConfig{
			WebsocketEnabled: true,
			WebsocketPort:    8787,
			DownstreamTCP:    nil,
			DownstreamREST:   nil,
			BatchSize:        100,
			MaxLatencyMS:     200,
		},
		Filters: FiltersConfig{
			AllowedKinds: []uint16{30931, 30932, 30933, 30934},
		},
		Postgres: PostgresConfig{
			DSN:            "",
			MaxConnections: 10,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9090,
			LogLevel:       "info",
			LogFormat:      "json",
		},
	}
}

// Validate checks required fields and reasonable bounds, returning the
// first problem found.
func (c *Config) Validate() error {
	if c.Relay.MaxConnections <= 0 {
		return fmt.Errorf("config: relay.max_connections must be positive")
	}
	if c.Deduplication.StorePath == "" {
		return fmt.Errorf("config: deduplication.store_path is required")
	}
	if c.Deduplication.HotSetSize <= 0 || c.Deduplication.BloomCapacity <= 0 || c.Deduplication.LRUSize <= 0 {
		return fmt.Errorf("config: deduplication layer sizes must be positive")
	}
	if c.Output.BatchSize <= 0 {
		return fmt.Errorf("config: output.batch_size must be positive")
	}
	if c.Output.MaxLatencyMS <= 0 {
		return fmt.Errorf("config: output.max_latency_ms must be positive")
	}
	if c.Output.WebsocketEnabled && (c.Output.WebsocketPort <= 0 || c.Output.WebsocketPort > 65535) {
		return fmt.Errorf("config: output.websocket_port out of range")
	}
	if c.Monitoring.PrometheusPort <= 0 || c.Monitoring.PrometheusPort > 65535 {
		return fmt.Errorf("config: monitoring.prometheus_port out of range")
	}
	return nil
}
