// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_FileLogging(t *testing.T) {
	logDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  logDir,
		Service: "focus-test",
		Quiet:   true,
	})

	logger.Info("session started", "session_id", "sess-1")
	logger.Debug("filtered out")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	wantFile := filepath.Join(logDir,
		"focus-test_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.SplitN(string(data), "\n", 2)[0]), &entry); err != nil {
		t.Fatalf("file log is not JSON: %v", err)
	}
	if entry["msg"] != "session started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "session started")
	}
	if entry["service"] != "focus-test" {
		t.Errorf("service = %v, want %q", entry["service"], "focus-test")
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want %q", entry["session_id"], "sess-1")
	}
	if strings.Contains(string(data), "filtered out") {
		t.Error("debug entry should have been filtered at Info level")
	}
}

func TestLogger_With(t *testing.T) {
	logDir := t.TempDir()
	logger := New(Config{LogDir: logDir, Service: "focus-test", Quiet: true})
	defer logger.Close()

	child := logger.With("session_id", "sess-2")
	child.Info("tick")

	wantFile := filepath.Join(logDir,
		"focus-test_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "sess-2") {
		t.Error("child logger attribute missing from output")
	}
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on a file-less logger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	fileA, err := os.Create(filepath.Join(dirA, "a.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer fileA.Close()
	fileB, err := os.Create(filepath.Join(dirB, "b.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer fileB.Close()

	handler := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(fileA, nil),
		slog.NewJSONHandler(fileB, nil),
	}}
	slog.New(handler).Info("fan out")

	for _, path := range []string{fileA.Name(), fileB.Name()} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "fan out") {
			t.Errorf("destination %s missed the record", path)
		}
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	warnOnly := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := &multiHandler{handlers: []slog.Handler{warnOnly}}

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled when every destination filters it")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}

// =============================================================================
// Path Expansion Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in this environment")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.focus/logs", filepath.Join(home, ".focus", "logs")},
		{"~", home},
		{"/var/log/focus", "/var/log/focus"},
		{"relative/path", "relative/path"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
