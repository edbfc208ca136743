// Relayer - Nostr-style Relay Aggregator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/relayer

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/relayer/config.yaml",
	"/etc/relayer/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is stripped from RELAYER_-prefixed environment variables before
// they are mapped onto koanf paths.
const envPrefix = "RELAYER_"

// Load builds the configuration from, in increasing priority: compiled-in
// defaults, an optional YAML file, then RELAYER_-prefixed environment
// variables. The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envMappings maps explicit environment variable names (without the
// RELAYER_ prefix, lowercased) to koanf paths. An explicit table, rather
// than a generic underscore-to-dot split, is used because several field
// names are themselves multi-word (store_path, batch_size, ...).
var envMappings = map[string]string{
	"relay_bootstrap_relays":         "relay.bootstrap_relays",
	"relay_max_connections":          "relay.max_connections",
	"relay_health_check_interval_s":  "relay.health_check_interval_s",
	"dedup_hotset_size":              "deduplication.hotset_size",
	"dedup_bloom_capacity":           "deduplication.bloom_capacity",
	"dedup_lru_size":                 "deduplication.lru_size",
	"dedup_store_path":               "deduplication.store_path",
	"output_websocket_enabled":       "output.websocket_enabled",
	"output_websocket_port":          "output.websocket_port",
	"output_downstream_tcp":          "output.downstream_tcp",
	"output_downstream_rest":         "output.downstream_rest",
	"output_batch_size":              "output.batch_size",
	"output_max_latency_ms":          "output.max_latency_ms",
	"filters_allowed_kinds":          "filters.allowed_kinds",
	"postgres_dsn":                   "postgres.dsn",
	"postgres_max_connections":       "postgres.max_connections",
	"monitoring_prometheus_port":     "monitoring.prometheus_port",
	"monitoring_log_level":           "monitoring.log_level",
	"monitoring_log_format":          "monitoring.log_format",
}

// envTransformFunc transforms RELAYER_-prefixed environment variable names
// to koanf config paths, e.g. RELAYER_OUTPUT_BATCH_SIZE -> output.batch_size.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return key
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
