// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/ductile/internal/metrics"
)

// Geometries are expected in EPSG:3857 (Web Mercator), the projection
// ST_TileEnvelope produces envelopes in. Data in another projection
// yields empty or misplaced tiles, not errors.

// TileQueryOptions describes the table a tile query renders from.
// Table, GeometryColumn, LayerName and Properties are interpolated
// into SQL verbatim: they are operator-supplied configuration, not
// request input, and quoting them would break schema-qualified names
// and column expressions.
type TileQueryOptions struct {
	// Table is the table or view to render. May be schema-qualified.
	Table string

	// GeometryColumn holds the EPSG:3857 geometries. Defaults to
	// "geometry".
	GeometryColumn string

	// LayerName keys the layer inside each tile. Defaults to "layer".
	LayerName string

	// Properties lists the columns encoded as feature attributes, in
	// order. Empty selects every column except the geometry column.
	Properties []string

	// Extent is the tile coordinate space. Defaults to 4096.
	Extent int

	// Buffer is the clip buffer in extent units. Zero disables the
	// buffer; negative values fall back to 64.
	Buffer int
}

// BuildTileQuery renders the tile SQL template for the given options.
// The query takes exactly six parameters: z, x, y for the tile
// envelope and z, x, y again for the intersection predicate, in that
// order. It returns a single row with a single BLOB column holding
// the encoded tile, or SQL NULL when no rows intersect the envelope.
func BuildTileQuery(opts TileQueryOptions) string {
	geom := opts.GeometryColumn
	if geom == "" {
		geom = "geometry"
	}
	layer := opts.LayerName
	if layer == "" {
		layer = "layer"
	}
	extent := opts.Extent
	if extent <= 0 {
		extent = 4096
	}
	buffer := opts.Buffer
	if buffer < 0 {
		buffer = 64
	}

	// Requested columns in declared order, or everything except the
	// raw geometry column. The geometry is re-added below, clipped to
	// the tile and aliased back to the same name.
	columns := fmt.Sprintf("* EXCLUDE (%s)", geom)
	if len(opts.Properties) > 0 {
		columns = strings.Join(opts.Properties, ", ")
	}

	return fmt.Sprintf(
		`WITH tile_data AS (
    SELECT %s, ST_AsMVTGeom(%s, ST_TileEnvelope(?, ?, ?), %d, %d, true) AS %s
    FROM %s
    WHERE ST_Intersects(%s, ST_TileEnvelope(?, ?, ?))
)
SELECT ST_AsMVT(tile_data.*, '%s', %d, '%s') FROM tile_data WHERE %s IS NOT NULL`,
		columns, geom, extent, buffer, geom,
		opts.Table,
		geom,
		layer, extent, geom, geom,
	)
}

// TileSet executes tile queries against an open database. The SQL is
// rendered once at construction; serving binds only z/x/y.
type TileSet struct {
	db    *DB
	query string
	table string
}

// NewTileSet builds the tile query for opts and binds it to db.
func NewTileSet(db *DB, opts TileQueryOptions) *TileSet {
	return &TileSet{
		db:    db,
		query: BuildTileQuery(opts),
		table: opts.Table,
	}
}

// Query returns the rendered tile SQL.
func (ts *TileSet) Query() string {
	return ts.query
}

// TileData returns the encoded vector tile for the given coordinates.
// A tile that matches no rows is a valid result and comes back as a
// zero-length, non-nil slice. Errors are per-request: the caller maps
// them to a 500 and the server keeps running.
func (ts *TileSet) TileData(ctx context.Context, z, x, y int) ([]byte, error) {
	start := time.Now()

	var tile []byte
	err := ts.db.conn.QueryRowContext(ctx, ts.query, z, x, y, z, x, y).Scan(&tile)
	if errors.Is(err, sql.ErrNoRows) {
		// No aggregate row at all carries the same meaning as a NULL
		// tile.
		err = nil
	}
	metrics.RecordTileQuery(ts.table, time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("tile query %d/%d/%d failed: %w", z, x, y, err)
	}

	// Scanning SQL NULL into []byte leaves it nil.
	if tile == nil {
		tile = []byte{}
	}
	return tile, nil
}
