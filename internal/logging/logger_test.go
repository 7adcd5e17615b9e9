// Ductile - DuckDB Vector Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ductile

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"", zerolog.InfoLevel},
		{"  debug  ", zerolog.DebugLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	Info().Str("table", "drives").Msg("Serving tiles")

	out := buf.String()
	if !strings.Contains(out, `"table":"drives"`) {
		t.Errorf("log output missing field: %s", out)
	}
	if !strings.Contains(out, `"message":"Serving tiles"`) {
		t.Errorf("log output missing message: %s", out)
	}
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	Info().Msg("should be dropped")
	Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("info event emitted at warn level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn event missing: %s", out)
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if id := RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("RequestIDFromContext(empty) = %q, want empty", id)
	}

	id := GenerateRequestID()
	if id == "" {
		t.Fatal("GenerateRequestID returned empty string")
	}
	if other := GenerateRequestID(); other == id {
		t.Error("GenerateRequestID returned duplicate IDs")
	}

	ctx := ContextWithRequestID(context.Background(), id)
	if got := RequestIDFromContext(ctx); got != id {
		t.Errorf("RequestIDFromContext = %q, want %q", got, id)
	}
}

func TestCtxAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(Config{Level: "info", Format: "json"})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	Ctx(ctx).Info().Msg("tile request")

	if out := buf.String(); !strings.Contains(out, `"request_id":"req-123"`) {
		t.Errorf("log output missing request_id: %s", out)
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Int("z", 4).Msg("probe")

	out := buf.String()
	if !strings.Contains(out, `"z":4`) || !strings.Contains(out, `"probe"`) {
		t.Errorf("unexpected test logger output: %s", out)
	}
}
