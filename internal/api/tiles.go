// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/ductile/internal/logging"
	"github.com/tomtom215/ductile/internal/metrics"
)

// TileCoords identifies a tile by zoom level and column/row.
type TileCoords struct {
	Z, X, Y int
}

const (
	tilePathPrefix = "/tiles/"
	tilePathSuffix = ".pbf"
)

// ParseTilePath matches paths of the exact form /tiles/<z>/<x>/<y>.pbf
// where z, x and y are decimal digit runs. The match is strictly
// lexical: case-sensitive, no whitespace tolerance, no signs. There is
// deliberately no range check, so coordinates outside any real tile
// scheme still dispatch and resolve downstream, usually to an empty
// tile. Anything else reports no match.
func ParseTilePath(path string) (TileCoords, bool) {
	if !strings.HasPrefix(path, tilePathPrefix) || !strings.HasSuffix(path, tilePathSuffix) {
		return TileCoords{}, false
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, tilePathPrefix), tilePathSuffix)
	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		return TileCoords{}, false
	}

	z, ok := parseTileNumber(parts[0])
	if !ok {
		return TileCoords{}, false
	}
	x, ok := parseTileNumber(parts[1])
	if !ok {
		return TileCoords{}, false
	}
	y, ok := parseTileNumber(parts[2])
	if !ok {
		return TileCoords{}, false
	}

	return TileCoords{Z: z, X: x, Y: y}, true
}

// parseTileNumber converts a run of decimal digits to an int. Signs,
// spaces and empty strings are rejected. Digit runs that overflow int
// cannot name a tile and are rejected as well.
func parseTileNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetTile serves a single vector tile. Paths that do not match the
// tile pattern get the standard 404; store failures surface as a 500
// carrying the underlying message and never take the server down.
func (h *Handler) GetTile(w http.ResponseWriter, r *http.Request) {
	coords, ok := ParseTilePath(r.URL.Path)
	if !ok {
		h.NotFound(w, r)
		return
	}

	tile, err := h.tiles.TileData(r.Context(), coords.Z, coords.X, coords.Y)
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Int("z", coords.Z).
			Int("x", coords.X).
			Int("y", coords.Y).
			Msg("Tile query failed")
		respondPlain(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.RecordTileServed(len(tile))

	setTileHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(tile); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write tile response")
	}
}

// NotFound serves the dispatcher's 404: plain text, fixed body.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respondPlain(w, http.StatusNotFound, "Not Found")
}

// setTileHeaders sets the response headers for an encoded tile.
// Cross-origin access stays wide open so browser map clients on any
// host can fetch tiles directly.
func setTileHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// respondPlain writes a text response with the given status.
func respondPlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		logging.Error().Err(err).Msg("Failed to write response")
	}
}
