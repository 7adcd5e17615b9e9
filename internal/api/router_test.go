// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

func TestRoutes_OptionsAnsweredOnAnyPath(t *testing.T) {
	store := &fakeTileStore{tile: []byte("x")}
	router := newTestRouter(store)

	paths := []string{
		"/tiles/1/2/3.pbf",
		"/tiles/not-a-tile",
		"/health",
		"/anything/else",
		"/",
	}
	for _, path := range paths {
		w := doRequest(t, router, http.MethodOptions, path)

		if w.Code != http.StatusOK {
			t.Errorf("OPTIONS %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("OPTIONS %s missing Access-Control-Allow-Origin", path)
		}
		if w.Header().Get("Access-Control-Allow-Methods") == "" {
			t.Errorf("OPTIONS %s missing Access-Control-Allow-Methods", path)
		}
		if w.Header().Get("Access-Control-Max-Age") != "86400" {
			t.Errorf("OPTIONS %s missing Access-Control-Max-Age", path)
		}
	}

	// Preflight never touches the store.
	if store.calls.Load() != 0 {
		t.Errorf("store called %d times by OPTIONS requests, want 0", store.calls.Load())
	}
}

func TestRoutes_UnknownPathIs404(t *testing.T) {
	router := newTestRouter(&fakeTileStore{})

	for _, path := range []string{"/", "/tiles", "/tiles/", "/favicon.ico", "/api/tiles/1/2/3.pbf"} {
		w := doRequest(t, router, http.MethodGet, path)

		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
		if body := w.Body.String(); body != "Not Found" {
			t.Errorf("GET %s body = %q, want %q", path, body, "Not Found")
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
			t.Errorf("GET %s Content-Type = %q, want text/plain", path, ct)
		}
	}
}

func TestRoutes_EveryResponseCarriesCORS(t *testing.T) {
	router := newTestRouter(&fakeTileStore{tile: []byte("x")})

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/tiles/0/0/0.pbf"},
		{http.MethodGet, "/no-such-route"},
		{http.MethodGet, "/health"},
		{http.MethodOptions, "/whatever"},
	}
	for _, req := range requests {
		w := doRequest(t, router, req.method, req.path)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s %s Access-Control-Allow-Origin = %q, want *", req.method, req.path, got)
		}
	}
}

func TestRoutes_HealthWithoutDatabase(t *testing.T) {
	router := newTestRouter(&fakeTileStore{})

	w := doRequest(t, router, http.MethodGet, "/health")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var status healthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode health payload: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Database != "unreachable" {
		t.Errorf("database = %q, want unreachable", status.Database)
	}
	if status.Version != "test" {
		t.Errorf("version = %q, want test", status.Version)
	}
	if status.Table != "drives" {
		t.Errorf("table = %q, want drives", status.Table)
	}
}

func TestRoutes_ReadinessWithoutDatabase(t *testing.T) {
	router := newTestRouter(&fakeTileStore{})

	w := doRequest(t, router, http.MethodGet, "/health/ready")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var payload map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode readiness payload: %v", err)
	}
	if payload["status"] != "not ready" {
		t.Errorf("status = %q, want %q", payload["status"], "not ready")
	}
}

func TestRoutes_MetricsEndpointToggle(t *testing.T) {
	store := &fakeTileStore{}

	withMetrics := NewHandler(store, nil, HandlerConfig{Table: "drives", Version: "test", EnableMetrics: true}).Routes()
	w := doRequest(t, withMetrics, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("enabled /metrics status = %d, want %d", w.Code, http.StatusOK)
	}

	withoutMetrics := NewHandler(store, nil, HandlerConfig{Table: "drives", Version: "test", EnableMetrics: false}).Routes()
	w = doRequest(t, withoutMetrics, http.MethodGet, "/metrics")
	if w.Code != http.StatusNotFound {
		t.Errorf("disabled /metrics status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRoutes_RequestIDHeader(t *testing.T) {
	router := newTestRouter(&fakeTileStore{tile: []byte("x")})

	// A caller-supplied ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/tiles/0/0/0.pbf", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "caller-supplied-id" {
		t.Errorf("X-Request-ID = %q, want caller-supplied-id", got)
	}

	// Without one, an ID is generated.
	w = doRequest(t, router, http.MethodGet, "/tiles/0/0/0.pbf")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}
}
