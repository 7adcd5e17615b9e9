// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the tile server:
// - DuckDB tile query performance
// - Tile payload sizes and empty-tile rate
// - HTTP endpoint latency and throughput

var (
	// Database Metrics
	TileQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_tile_query_duration_seconds",
			Help:    "Duration of DuckDB tile queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"table"},
	)

	TileQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_tile_query_errors_total",
			Help: "Total number of DuckDB tile query errors",
		},
		[]string{"table", "error_type"},
	)

	// Tile Payload Metrics
	TileResponseBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tile_response_bytes",
			Help:    "Size of encoded vector tiles in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B to ~16MB
		},
	)

	TilesEmptyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tiles_empty_total",
			Help: "Total number of tile requests that matched no features",
		},
	)

	// HTTP Endpoint Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	// Build Information
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ductile_build_info",
			Help: "Build information (value is always 1)",
		},
		[]string{"version"},
	)
)

// RecordTileQuery records the duration of a tile query against the
// store, and classifies any error by its leading message text.
func RecordTileQuery(table string, duration time.Duration, err error) {
	TileQueryDuration.WithLabelValues(table).Observe(duration.Seconds())

	if err != nil {
		// Cap the label to keep cardinality bounded.
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		TileQueryErrors.WithLabelValues(table, errorType).Inc()
	}
}

// RecordTileServed records the size of a successfully encoded tile.
// Zero-length tiles are valid responses and are counted separately.
func RecordTileServed(bytes int) {
	TileResponseBytes.Observe(float64(bytes))
	if bytes == 0 {
		TilesEmptyTotal.Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// SetBuildInfo publishes the running version as a constant gauge.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}
