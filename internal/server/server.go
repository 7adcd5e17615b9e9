// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package server owns the tile server lifecycle: it validates the
// store, resolves a listen port, builds the HTTP stack, and runs it
// under a supervisor tree until stopped.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/ductile/internal/api"
	"github.com/tomtom215/ductile/internal/config"
	"github.com/tomtom215/ductile/internal/database"
	"github.com/tomtom215/ductile/internal/logging"
	"github.com/tomtom215/ductile/internal/supervisor"
	"github.com/tomtom215/ductile/internal/supervisor/services"
)

var (
	// ErrAlreadyStarted is returned by Start on a server that has run
	// before. A stopped server stays stopped; build a new one instead.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrNotRunning is returned by Stop on a server that is not running.
	ErrNotRunning = errors.New("server is not running")
)

type serverState int

const (
	stateUnstarted serverState = iota
	stateRunning
	stateStopped
)

// Server runs the HTTP tile API over an open DuckDB store.
//
// The lifecycle is one-way: Unstarted, Running, Stopped. A failed Start
// leaves the server Unstarted so the caller may retry; a successful
// Stop is terminal.
type Server struct {
	cfg     *config.Config
	db      *database.DB
	version string

	mu      sync.Mutex
	state   serverState
	host    string
	port    int
	cancel  context.CancelFunc
	treeErr <-chan error
	tree    *supervisor.SupervisorTree
}

// New creates an unstarted server for the given configuration and open
// store. The store is not touched until Start.
func New(cfg *config.Config, db *database.DB, version string) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		version: version,
	}
}

// Start validates the store, binds a listen port, and starts serving in
// the background. It returns once the listener is bound and supervised;
// ctx bounds only the validation queries.
//
// With Server.Port set the configured port is bound directly and a bind
// failure fails the start. With Port 0 candidate ports are probed
// ascending from Server.PortStart.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateUnstarted {
		return ErrAlreadyStarted
	}

	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("store is not reachable: %w", err)
	}
	exists, err := s.db.TableExists(ctx, s.cfg.Tiles.Table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("tile table %q does not exist in %s", s.cfg.Tiles.Table, s.db.Path())
	}

	listener, err := s.listen()
	if err != nil {
		return err
	}

	tiles := database.NewTileSet(s.db, database.TileQueryOptions{
		Table:          s.cfg.Tiles.Table,
		GeometryColumn: s.cfg.Tiles.GeometryColumn,
		LayerName:      s.cfg.Tiles.LayerName,
		Properties:     s.cfg.Tiles.Properties,
		Extent:         s.cfg.Tiles.Extent,
		Buffer:         s.cfg.Tiles.Buffer,
	})
	handler := api.NewHandler(tiles, s.db, api.HandlerConfig{
		Table:         s.cfg.Tiles.Table,
		Version:       s.version,
		EnableMetrics: s.cfg.Metrics.Enabled,
	})

	httpServer := &http.Server{
		Handler:      handler.Routes(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to build supervisor tree: %w", err)
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, listener, s.cfg.Server.ShutdownTimeout))

	// The serving lifetime is owned by Stop, not by the Start context.
	runCtx, cancel := context.WithCancel(context.Background())

	s.host = s.cfg.Server.Host
	s.port = boundPort(listener)
	s.tree = tree
	s.cancel = cancel
	s.treeErr = tree.ServeBackground(runCtx)
	s.state = stateRunning

	logging.Info().
		Str("url", s.urlLocked()).
		Str("table", s.cfg.Tiles.Table).
		Str("version", s.version).
		Msg("Tile server started")

	return nil
}

// listen resolves and binds the listener for this start attempt.
func (s *Server) listen() (net.Listener, error) {
	host := s.cfg.Server.Host

	if s.cfg.Server.Port != 0 {
		addr := net.JoinHostPort(host, strconv.Itoa(s.cfg.Server.Port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to bind configured port: %w", err)
		}
		return l, nil
	}

	l, err := listenFirstFree(host, s.cfg.Server.PortStart, s.cfg.Server.PortAttempts)
	if err != nil {
		return nil, fmt.Errorf("port probe failed: %w", err)
	}
	return l, nil
}

// Stop shuts the server down and transitions it to the terminal Stopped
// state. ctx bounds how long to wait for the supervisor tree to drain.
// With closeStore the underlying DuckDB store is closed as well; leave
// it false when the caller owns the store.
func (s *Server) Stop(ctx context.Context, closeStore bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning {
		return ErrNotRunning
	}

	s.cancel()

	var stopErr error
	select {
	case err := <-s.treeErr:
		// Suture reports the cancellation that stopped it.
		if err != nil && !errors.Is(err, context.Canceled) {
			stopErr = fmt.Errorf("supervisor tree stopped with error: %w", err)
		}
	case <-ctx.Done():
		s.logUnstoppedServices()
		stopErr = fmt.Errorf("shutdown did not complete: %w", ctx.Err())
	}

	if closeStore {
		if err := s.db.Close(); err != nil && stopErr == nil {
			stopErr = fmt.Errorf("failed to close store: %w", err)
		}
	}

	s.state = stateStopped
	logging.Info().Bool("store_closed", closeStore).Msg("Tile server stopped")

	return stopErr
}

func (s *Server) logUnstoppedServices() {
	report, err := s.tree.UnstoppedServiceReport()
	if err != nil || len(report) == 0 {
		return
	}
	for _, svc := range report {
		logging.Warn().
			Str("service", svc.Name).
			Msg("Service did not stop within shutdown window")
	}
}

// URL returns the tile endpoint template for the running server, with
// {z}, {x} and {y} placeholders where coordinates belong. Empty until
// the server has started.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == 0 {
		return ""
	}
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	return fmt.Sprintf("http://%s:%d/tiles/{z}/{x}/{y}.pbf", s.host, s.port)
}

// Host returns the configured listen host.
func (s *Server) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Port returns the bound listen port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Table returns the table the server serves tiles from.
func (s *Server) Table() string {
	return s.cfg.Tiles.Table
}

// Running reports whether the server is currently serving.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}
