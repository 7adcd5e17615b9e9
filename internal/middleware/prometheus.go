// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package middleware provides HTTP middleware shared across routes.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/ductile/internal/metrics"
)

// PrometheusMetrics records request counts, latencies and in-flight
// gauge for every request passing through.
//
// Tile paths are collapsed to a single endpoint label so per-tile
// paths cannot explode label cardinality.
func PrometheusMetrics(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			start := time.Now()

			wrapper := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapper, r)

			label := endpoint
			if label == "" {
				label = r.URL.Path
			}
			metrics.RecordHTTPRequest(
				r.Method,
				label,
				strconv.Itoa(wrapper.statusCode),
				time.Since(start),
			)
		})
	}
}

// statusResponseWriter wraps http.ResponseWriter to capture the
// status code.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
