// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ductile/internal/logging"
)

var errNoDatabase = errors.New("no database attached")

// healthStatus is the /health response payload.
type healthStatus struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Table     string    `json:"table"`
	Spatial   bool      `json:"spatial"`
}

// Health reports the overall server state. The database is probed
// with a short deadline so a wedged store degrades the health report
// instead of hanging it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:    "ok",
		Version:   h.cfg.Version,
		Timestamp: time.Now().UTC(),
		Database:  "ok",
		Table:     h.cfg.Table,
	}

	httpStatus := http.StatusOK
	if err := h.pingDatabase(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
		httpStatus = http.StatusServiceUnavailable
	} else {
		status.Spatial = h.db.IsSpatialAvailable()
	}

	respondJSON(w, httpStatus, status)
}

// HealthReady reports readiness to serve tiles: the database must
// answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDatabase(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) pingDatabase(ctx context.Context) error {
	if h.db == nil {
		return errNoDatabase
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.db.Ping(pingCtx)
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
