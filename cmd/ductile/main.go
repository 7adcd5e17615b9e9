// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package main is the entry point for the Ductile tile server.
//
// Ductile serves Mapbox Vector Tiles straight out of a DuckDB database.
// Point it at a file with a spatial table and it exposes the standard
// /tiles/{z}/{x}/{y}.pbf endpoint that web mapping libraries consume,
// with the tile cut, clipped, and encoded by DuckDB's spatial extension
// at request time.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Open DuckDB and load the spatial extension
//  3. Server: Validate the tile table, bind a port, start the supervised HTTP stack
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// The two required settings:
//   - DUCKDB_PATH: the DuckDB database file to serve from
//   - TILE_TABLE: the table holding the geometry to serve
//
// Frequently used optional settings:
//   - TILE_GEOMETRY_COLUMN: geometry column name (default: geometry)
//   - TILE_LAYER_NAME: layer name written into each tile (default: layer)
//   - TILE_PROPERTIES: comma-separated feature properties (default: all columns)
//   - HTTP_PORT: fixed listen port; 0 probes from HTTP_PORT_START (default: 0)
//   - DUCKDB_ACCESS_MODE: read_only or read_write (default: read_only)
//
// Geometry is expected in EPSG:3857 (Web Mercator). Data in another
// projection produces empty or misplaced tiles rather than errors.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (HTTP_SHUTDOWN_TIMEOUT, default 10s)
//   - Closes the database
//
// # Example Usage
//
// Serve a table read-only on a probed port:
//
//	export DUCKDB_PATH=drives.duckdb
//	export TILE_TABLE=drives
//	./ductile
//
// Serve selected properties on a fixed port:
//
//	export DUCKDB_PATH=roads.duckdb
//	export TILE_TABLE=roads
//	export TILE_PROPERTIES=name,max_speed,surface
//	export HTTP_PORT=8080
//	./ductile
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/ductile/internal/config"
	"github.com/tomtom215/ductile/internal/database"
	"github.com/tomtom215/ductile/internal/logging"
	"github.com/tomtom215/ductile/internal/metrics"
	"github.com/tomtom215/ductile/internal/server"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("version", version).Msg("Starting Ductile")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("access_mode", cfg.Database.AccessMode).
		Str("table", cfg.Tiles.Table).
		Msg("Configuration loaded")

	metrics.SetBuildInfo(version)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	srv := server.New(cfg, db, version)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := srv.Start(startCtx); err != nil {
		// Close the database before the fatal exit; deferred calls do
		// not run past logging.Fatal.
		if closeErr := db.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing database")
		}
		logging.Fatal().Err(err).Msg("Failed to start tile server")
	}

	logging.Info().Str("url", srv.URL()).Msg("Serving tiles")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Give the tree its shutdown window plus a little slack before
	// abandoning the wait.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancelShutdown()

	// The deferred close owns the database; Stop only drains the HTTP stack.
	if err := srv.Stop(shutdownCtx, false); err != nil {
		logging.Error().Err(err).Msg("Shutdown error")
	}

	logging.Info().Msg("Application stopped gracefully")
}
