// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ductile/internal/middleware"
)

// Routes builds the HTTP handler tree.
//
// Tiles are mounted as a wildcard and re-parsed by the strict path
// parser rather than as chi URL params: the tile pattern is exact
// down to the .pbf suffix, and anything that fails it must fall
// through to the fixed 404, not chi's.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS must
	// come before routing so OPTIONS is answered on any path.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PermissiveCORS())
	r.Use(CORSHandler())

	r.With(middleware.PrometheusMetrics("/tiles/{z}/{x}/{y}.pbf")).
		Handle("/tiles/*", http.HandlerFunc(h.GetTile))

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.HealthReady)

	if h.cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.NotFound(h.NotFound)

	return r
}
