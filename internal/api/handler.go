// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package api provides the HTTP surface of the tile server: the tile
// path parser, the tile handler, health endpoints, and the router
// wiring them together.
package api

import (
	"context"

	"github.com/tomtom215/ductile/internal/database"
)

// TileStore produces encoded vector tiles for tile coordinates. A
// zero-length result is a valid empty tile.
type TileStore interface {
	TileData(ctx context.Context, z, x, y int) ([]byte, error)
}

// HandlerConfig carries the request-independent details handlers
// report or expose.
type HandlerConfig struct {
	// Table is the configured tile table, reported by health checks.
	Table string

	// Version is the build version, reported by health checks.
	Version string

	// EnableMetrics mounts the Prometheus endpoint on the router.
	EnableMetrics bool
}

// Handler serves all HTTP endpoints.
type Handler struct {
	tiles TileStore
	db    *database.DB
	cfg   HandlerConfig
}

// NewHandler creates a handler serving tiles from store. db may be
// nil in tests; health checks then report the database unreachable.
func NewHandler(store TileStore, db *database.DB, cfg HandlerConfig) *Handler {
	return &Handler{
		tiles: store,
		db:    db,
		cfg:   cfg,
	}
}
