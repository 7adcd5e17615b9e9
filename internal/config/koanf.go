// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

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

	"github.com/tomtom215/ductile/internal/logging"
)

// ConfigPathEnvVar overrides the config file search order when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are checked in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ductile/config.yaml",
	"/etc/ductile/config.yml",
}

// sliceConfigPaths are config keys that hold string slices. Environment
// variables set them as comma-separated values, which need splitting
// before unmarshaling.
var sliceConfigPaths = []string{
	"tiles.properties",
}

// Load builds the runtime configuration by layering, in order:
// built-in defaults, an optional YAML config file, and explicitly
// mapped environment variables. The result is validated before return.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		logging.Info().Str("path", path).Msg("Loaded configuration file")
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	processSliceFields(k)

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first readable config file, or empty when
// none exists. CONFIG_PATH wins over the default search order.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		logging.Warn().Str("path", path).Msg("CONFIG_PATH is set but the file does not exist")
		return ""
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config keys. Only
// the variables listed here are read, so unrelated environment
// variables can never leak into the configuration. Returning an empty
// string drops the variable.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"duckdb_path":        "database.path",
		"duckdb_access_mode": "database.access_mode",
		"duckdb_threads":     "database.threads",
		"duckdb_max_memory":  "database.max_memory",

		"tile_table":           "tiles.table",
		"tile_geometry_column": "tiles.geometry_column",
		"tile_layer_name":      "tiles.layer_name",
		"tile_properties":      "tiles.properties",
		"tile_extent":          "tiles.extent",
		"tile_buffer":          "tiles.buffer",

		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_port_start":       "server.port_start",
		"http_port_attempts":    "server.port_attempts",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		"metrics_enabled": "metrics.enabled",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}

// processSliceFields normalizes slice-valued keys. A YAML file produces
// a real slice; an environment variable produces a single
// comma-separated string that must be split and trimmed.
func processSliceFields(k *koanf.Koanf) {
	for _, path := range sliceConfigPaths {
		if !k.Exists(path) {
			continue
		}

		raw := k.Get(path)
		switch v := raw.(type) {
		case []interface{}, []string:
			_ = v
		case string:
			parts := strings.Split(v, ",")
			cleaned := make([]string, 0, len(parts))
			for _, p := range parts {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					cleaned = append(cleaned, trimmed)
				}
			}
			_ = k.Set(path, cleaned)
		}
	}
}
