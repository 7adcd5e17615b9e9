// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package config provides layered configuration loading for the tile
// server. Values are resolved in priority order: defaults, then an
// optional YAML file, then environment variables. Only explicitly
// mapped environment variables are consulted.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/ductile/internal/validation"
)

// Config is the root configuration for the tile server daemon.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Tiles    TilesConfig    `koanf:"tiles"`
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig controls the DuckDB connection.
type DatabaseConfig struct {
	// Path is the DuckDB database file to serve tiles from.
	Path string `koanf:"path" validate:"required"`

	// AccessMode is read_only or read_write. Tile serving never writes,
	// so read_only is the default and allows multiple processes to
	// share the same database file.
	AccessMode string `koanf:"access_mode" validate:"oneof=read_only read_write"`

	// Threads caps DuckDB's internal thread pool. Zero lets DuckDB
	// decide based on the host.
	Threads int `koanf:"threads" validate:"min=0"`

	// MaxMemory is DuckDB's memory limit, e.g. "2GB". Empty uses the
	// DuckDB default (80% of system memory).
	MaxMemory string `koanf:"max_memory"`
}

// TilesConfig describes the table the server renders tiles from.
type TilesConfig struct {
	// Table is the table or view containing the geometry rows. It may
	// be schema-qualified, e.g. "main.buildings".
	Table string `koanf:"table" validate:"required"`

	// GeometryColumn is the column holding EPSG:3857 geometries.
	GeometryColumn string `koanf:"geometry_column" validate:"required"`

	// LayerName is the layer identifier written into each tile.
	LayerName string `koanf:"layer_name" validate:"required"`

	// Properties lists the columns encoded as feature attributes. Empty
	// means every column except the geometry column.
	Properties []string `koanf:"properties"`

	// Extent is the tile coordinate space, in units per tile side.
	Extent int `koanf:"extent" validate:"min=1,max=65536"`

	// Buffer is the clip buffer around each tile, in extent units.
	Buffer int `koanf:"buffer" validate:"min=0"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`

	// Port pins the listener to a fixed port. Zero enables probing from
	// PortStart instead.
	Port int `koanf:"port" validate:"min=0,max=65535"`

	// PortStart is the first port tried when Port is zero.
	PortStart int `koanf:"port_start" validate:"min=1,max=65535"`

	// PortAttempts is how many consecutive ports are probed.
	PortAttempts int `koanf:"port_attempts" validate:"min=1"`

	ReadTimeout time.Duration `koanf:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds how long a tile response may take to write.
	// Zero means unbounded: a slow store query stalls only its own
	// request, never the listener.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=0"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. Every field that has a
// sensible zero-config value is set here; Load layers file and
// environment values on top.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:       "data/ductile.duckdb",
			AccessMode: "read_only",
			Threads:    0,
			MaxMemory:  "",
		},
		Tiles: TilesConfig{
			Table:          "",
			GeometryColumn: "geometry",
			LayerName:      "layer",
			Properties:     nil,
			Extent:         4096,
			Buffer:         64,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			PortStart:       8000,
			PortAttempts:    10,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for structural and cross-field
// errors. Messages name the environment variable that fixes the
// problem, since that is how most deployments set values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required (set DUCKDB_PATH)")
	}
	if c.Tiles.Table == "" {
		return fmt.Errorf("tile table is required (set TILE_TABLE)")
	}
	for _, p := range c.Tiles.Properties {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("tile properties contain an empty column name (check TILE_PROPERTIES)")
		}
	}
	if c.Server.Port == 0 {
		if last := c.Server.PortStart + c.Server.PortAttempts - 1; last > 65535 {
			return fmt.Errorf("port probe range %d-%d exceeds 65535 (lower HTTP_PORT_START or HTTP_PORT_ATTEMPTS)",
				c.Server.PortStart, last)
		}
	}

	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
