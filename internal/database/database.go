// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package database wraps the DuckDB connection behind the tile server.
// It owns connection setup, spatial extension loading, and the tile
// query path.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/ductile/internal/config"
	"github.com/tomtom215/ductile/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// spatialAvailable tracks whether the spatial extension loaded.
	// Tile queries fail without it; startup validation and health
	// checks still work.
	spatialAvailable bool
}

// New opens the configured DuckDB database and loads the spatial
// extension. The connection is verified with a ping before return.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	// Read-write mode may create the file, so the parent directory
	// must exist. Read-only mode must never create anything.
	if cfg.AccessMode == "read_write" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := conn.PingContext(pingCtx); err != nil {
		pingCancel()
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Path, err)
	}
	pingCancel()

	db := &DB{
		conn:             conn,
		cfg:              cfg,
		spatialAvailable: true,
	}
	db.configureConnectionPool()

	if err := db.loadSpatialExtension(); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Str("access_mode", cfg.AccessMode).
		Bool("spatial", db.spatialAvailable).
		Msg("Database opened")

	return db, nil
}

// connString builds the DuckDB connection string with tuning options.
// Auto-install/auto-load are disabled to prevent hangs in restricted
// network environments; the spatial extension is loaded explicitly.
func connString(cfg *config.DatabaseConfig) string {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	params := []string{
		fmt.Sprintf("access_mode=%s", cfg.AccessMode),
		fmt.Sprintf("threads=%d", numThreads),
		"autoinstall_known_extensions=false",
		"autoload_known_extensions=false",
	}
	if cfg.MaxMemory != "" {
		params = append(params, fmt.Sprintf("max_memory=%s", cfg.MaxMemory))
	}

	return cfg.Path + "?" + strings.Join(params, "&")
}

// loadSpatialExtension loads the DuckDB spatial extension, installing
// it first when it is not already present. When DUCKDB_SPATIAL_OPTIONAL
// is set to "true" a failure only marks the extension unavailable,
// which lets tests run on hosts without the extension bundle.
func (db *DB) loadSpatialExtension() error {
	optional := os.Getenv("DUCKDB_SPATIAL_OPTIONAL") == "true"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "LOAD spatial;"); err != nil {
		if _, installErr := db.conn.ExecContext(ctx, "INSTALL spatial;"); installErr != nil {
			if optional {
				db.spatialAvailable = false
				logging.Warn().Err(installErr).Msg("Spatial extension unavailable, tile queries will fail")
				return nil
			}
			return fmt.Errorf("failed to install spatial extension: %w", installErr)
		}
		if _, loadErr := db.conn.ExecContext(ctx, "LOAD spatial;"); loadErr != nil {
			if optional {
				db.spatialAvailable = false
				logging.Warn().Err(loadErr).Msg("Spatial extension unavailable, tile queries will fail")
				return nil
			}
			return fmt.Errorf("failed to load spatial extension: %w", loadErr)
		}
	}

	return nil
}

// configureConnectionPool sets connection pool parameters:
// max_open NumCPU() for parallelism, max_idle 2 for reuse,
// max_lifetime 1h to prevent stale connections.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// IsSpatialAvailable returns whether the spatial extension loaded.
func (db *DB) IsSpatialAvailable() bool {
	return db.spatialAvailable
}

// SetSpatialAvailableForTesting overrides the spatial availability
// flag so unit tests can exercise both paths without the extension.
func (db *DB) SetSpatialAvailableForTesting(available bool) {
	db.spatialAvailable = available
}

// Conn returns the underlying SQL database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.cfg.Path
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// TableExists reports whether the given table or view is queryable.
// The name may be schema-qualified, e.g. "main.buildings".
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	schema := "main"
	table := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		schema = name[:idx]
		table = name[idx+1:]
	}

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		schema, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// Close checkpoints the WAL when writable and closes the connection.
// The checkpoint is best effort; read-only databases have no WAL to
// flush and skip it entirely.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.cfg.AccessMode == "read_write" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}

	return db.conn.Close()
}

// closeQuietly closes a resource, logging any error at debug level.
func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing resource")
	}
}
