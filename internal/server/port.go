// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package server

import (
	"fmt"
	"net"
	"strconv"
)

// FindFreePort probes candidate ports ascending from start and returns
// the first one that accepts a TCP bind on host. The probe binds and
// immediately releases each candidate, so the result is advisory: a
// caller that needs the port must bind it again.
//
// The scan order is deterministic. Two calls with the same arguments
// against the same set of occupied ports return the same port.
func FindFreePort(host string, start, attempts int) (int, error) {
	l, err := listenFirstFree(host, start, attempts)
	if err != nil {
		return 0, err
	}
	port := boundPort(l)
	if err := l.Close(); err != nil {
		return 0, fmt.Errorf("failed to release probed port %d: %w", port, err)
	}
	return port, nil
}

// listenFirstFree binds the first free candidate port and returns the
// held listener. The server start path uses this directly so the port
// it advertises is the port it holds.
func listenFirstFree(host string, start, attempts int) (net.Listener, error) {
	if attempts < 1 {
		return nil, fmt.Errorf("port probe needs at least one attempt, got %d", attempts)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		port := start + i
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		return l, nil
	}
	return nil, fmt.Errorf("all %d candidate ports from %d on %s are unavailable: %w",
		attempts, start, host, lastErr)
}

// boundPort extracts the port a TCP listener is bound to. This resolves
// port 0 binds to the kernel-assigned port.
func boundPort(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
