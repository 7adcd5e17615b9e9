// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package api

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/tomtom215/ductile/internal/logging"
)

// PermissiveCORS stamps Access-Control-Allow-Origin on every response
// and answers any OPTIONS request with 200 before routing. The server
// is an open tile source: browser map clients fetch from arbitrary
// origins, and some send preflights without the headers the standard
// CORS middleware requires, so OPTIONS is terminal here regardless of
// path or preflight headers.
func PermissiveCORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "*")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSHandler returns the standard go-chi CORS middleware configured
// for an open tile source. It layers on top of PermissiveCORS to
// serve clients that negotiate CORS properly.
func CORSHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// RequestIDWithLogging assigns each request an ID, echoes it in the
// X-Request-ID response header, and threads it through the logging
// context so every log line of a request correlates.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
