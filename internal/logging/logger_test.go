// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := GetLevel()
	Init(Config{Level: level, Format: "json", Output: &buf})
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	buf := captureGlobal(t, "warn")

	Info().Msg("dropped")
	Warn().Str("engine", "releases").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	m := decodeLine(t, lines[0])
	if m["message"] != "kept" || m["engine"] != "releases" || m["level"] != "warn" {
		t.Errorf("unexpected entry: %v", m)
	}
}

func TestCtx_AddsRequestAndRunID(t *testing.T) {
	buf := captureGlobal(t, "info")

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithRunID(ctx, "run-9")
	CtxInfo(ctx).Msg("hello")

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["request_id"] != "req-1" {
		t.Errorf("request_id = %v", m["request_id"])
	}
	if m["run_id"] != "run-9" {
		t.Errorf("run_id = %v", m["run_id"])
	}
}

func TestWithComponent(t *testing.T) {
	buf := captureGlobal(t, "info")

	l := WithComponent("scheduler")
	l.Info().Msg("tick")

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["component"] != "scheduler" {
		t.Errorf("component = %v", m["component"])
	}
}

func TestSlogHandler_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	logger := slog.New(NewSlogHandlerWithLogger(zl)).WithGroup("svc").With("name", "reconciler")

	logger.Warn("restarting", "attempt", 3, "err", errors.New("boom"))

	m := decodeLine(t, strings.TrimSpace(buf.String()))
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
	if m["svc.name"] != "reconciler" {
		t.Errorf("svc.name = %v", m["svc.name"])
	}
	if m["svc.attempt"] != float64(3) {
		t.Errorf("svc.attempt = %v", m["svc.attempt"])
	}
	if m["svc.err"] != "boom" {
		t.Errorf("svc.err = %v", m["svc.err"])
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
