// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
)

type FocusConfig struct {
	// Server: where the focus server lives and how to authenticate
	Server ServerConfig `yaml:"server"`

	// Snapshot: where crash-recovery state is stored on disk
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Defaults: values used when a command omits them
	Defaults DefaultsConfig `yaml:"defaults"`
}

type ServerConfig struct {
	BaseURL        string `yaml:"base_url"`        // e.g. http://localhost:12310
	APIToken       string `yaml:"api_token"`       // empty means local single-user mode
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-request HTTP timeout
}

type SnapshotConfig struct {
	Dir string `yaml:"dir"` // e.g. ~/.focus/cli
}

type DefaultsConfig struct {
	SessionType     string `yaml:"session_type"`     // time-boxed, open, or pomodoro
	DurationMinutes int    `yaml:"duration_minutes"` // e.g. 25
}

func DefaultConfig() FocusConfig {
	snapshotDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		snapshotDir = filepath.Join(home, ".focus", "cli")
	}
	return FocusConfig{
		Server: ServerConfig{
			BaseURL:        "http://localhost:12310",
			TimeoutSeconds: 10,
		},
		Snapshot: SnapshotConfig{
			Dir: snapshotDir,
		},
		Defaults: DefaultsConfig{
			SessionType:     "time-boxed",
			DurationMinutes: 25,
		},
	}
}
