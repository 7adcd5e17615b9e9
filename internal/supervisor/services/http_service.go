// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

// Package services adapts the server's components to suture.Service.
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer interface matches *http.Server lifecycle methods.
//
// This interface allows the HTTPServerService to work with http.Server
// without direct dependency, enabling testing with mocks.
//
// Satisfied by *http.Server from net/http:
//   - Serve(l net.Listener) error
//   - Shutdown(ctx context.Context) error
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service.
//
// The server binds its listener before supervision starts, so bind
// failures surface synchronously and the bound port is known up front.
// This wrapper therefore takes a pre-bound listener rather than an
// address, and handles the translation between http.Server's blocking
// Serve pattern and suture's context-aware Serve pattern:
//
//  1. Serves on the listener in a goroutine
//  2. Waits for either context cancellation or server error
//  3. On shutdown, calls Shutdown with the configured timeout
//
// Example usage:
//
//	ln, _ := net.Listen("tcp", "127.0.0.1:8000")
//	server := &http.Server{Handler: router}
//	svc := services.NewHTTPServerService(server, ln, 10*time.Second)
//	tree.AddAPIService(svc)
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	name            string

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServerService creates a new HTTP server service wrapper around
// a pre-bound listener.
//
// The shutdownTimeout determines how long to wait for active connections
// to close during graceful shutdown. A typical value is 10-30 seconds.
func NewHTTPServerService(server HTTPServer, listener net.Listener, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	svc := &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
	if listener != nil {
		svc.addr = listener.Addr().String()
		svc.listener = listener
	}
	return svc
}

// takeListener returns the pre-bound listener on the first call. On
// supervised restarts the original listener has been closed by
// http.Server.Serve, so the same address is bound again. The address is
// fixed at construction to keep the advertised URL stable across
// restarts.
func (h *HTTPServerService) takeListener() (net.Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener != nil {
		l := h.listener
		h.listener = nil
		return l, nil
	}
	if h.addr == "" {
		return nil, errors.New("no listener and no address to rebind")
	}
	return net.Listen("tcp", h.addr)
}

// Serve implements suture.Service.
//
// This method:
//  1. Serves HTTP on the listener in a goroutine (blocks on Serve)
//  2. Waits for context cancellation or server error
//  3. On shutdown, calls server.Shutdown for graceful termination
//
// Returns nil on graceful shutdown, or an error if the server fails.
// http.ErrServerClosed is converted to nil since it's expected on shutdown.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	l, err := h.takeListener()
	if err != nil {
		return fmt.Errorf("http server listen on %s: %w", h.addr, err)
	}

	// Start server in goroutine since Serve blocks
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		// Server failed to start or crashed
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		// Server closed normally (shouldn't happen unless externally triggered)
		return nil

	case <-ctx.Done():
		// Graceful shutdown requested
		// Use a new context for shutdown since the original is canceled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		// Attempt graceful shutdown
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		// Wait for the server goroutine to finish
		<-errCh
		return ctx.Err()
	}
}

// Addr returns the address the service serves on.
func (h *HTTPServerService) Addr() string {
	return h.addr
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (h *HTTPServerService) String() string {
	return h.name
}
