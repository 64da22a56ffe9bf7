// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandVars(t *testing.T) {
	t.Setenv("KLAXON_TEST_DIR", "/srv/klaxon")
	t.Setenv("KLAXON_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${KLAXON_TEST_DIR}/default", "/srv/klaxon/default"},
		{"${KLAXON_TEST_DIR:-/tmp}/default", "/srv/klaxon/default"},
		{"${KLAXON_TEST_EMPTY:-/tmp}/default", "/tmp/default"},
		{"${KLAXON_TEST_UNSET:-/tmp}/default", "/tmp/default"},
		{"${KLAXON_TEST_UNSET}/default", "${KLAXON_TEST_UNSET}/default"},
		{"no variables here", "no variables here"},
	}
	for _, test := range tests {
		if got := expandVars(test.in); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("KLAXON_TEST_HOME", "/home/op")
	t.Setenv("KLAXON_STORE", "")
	t.Setenv("KLAXON_PASSPHRASE_FILE", "")
	t.Setenv("KLAXON_LOG_LEVEL", "")
	t.Setenv("KLAXON_LOG_FORMAT", "")

	path := filepath.Join(t.TempDir(), "inspect.yaml")
	content := `
store: ${KLAXON_TEST_HOME}/.local/share/klaxon/default
passphrase_file: ${KLAXON_TEST_HOME}/.klaxon-pass
log_level: debug
log_format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Store != "/home/op/.local/share/klaxon/default" {
		t.Errorf("Store = %q, want expanded home", config.Store)
	}
	if config.PassphraseFile != "/home/op/.klaxon-pass" {
		t.Errorf("PassphraseFile = %q, want expanded home", config.PassphraseFile)
	}
	if config.LogLevel != "debug" || config.LogFormat != "json" {
		t.Errorf("log settings = %q/%q, want debug/json", config.LogLevel, config.LogFormat)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("KLAXON_STORE", "/env/store")
	t.Setenv("KLAXON_LOG_LEVEL", "error")
	t.Setenv("KLAXON_PASSPHRASE_FILE", "")
	t.Setenv("KLAXON_LOG_FORMAT", "")

	path := filepath.Join(t.TempDir(), "inspect.yaml")
	if err := os.WriteFile(path, []byte("store: /file/store\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.Store != "/env/store" {
		t.Errorf("Store = %q, want environment override /env/store", config.Store)
	}
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want environment override error", config.LogLevel)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("KLAXON_STORE", "")
	t.Setenv("KLAXON_PASSPHRASE_FILE", "")
	t.Setenv("KLAXON_LOG_LEVEL", "")
	t.Setenv("KLAXON_LOG_FORMAT", "")

	missing := filepath.Join(t.TempDir(), "nope.yaml")

	config, err := LoadConfig(missing, false)
	if err != nil {
		t.Fatalf("LoadConfig at default location: %v", err)
	}
	if config.LogLevel != "warn" || config.LogFormat != "text" {
		t.Errorf("defaults = %q/%q, want warn/text", config.LogLevel, config.LogFormat)
	}

	if _, err := LoadConfig(missing, true); err == nil {
		t.Error("LoadConfig with explicit missing path: want error, got nil")
	}
}

func TestConfigValidateReportsAllProblems(t *testing.T) {
	config := Config{LogLevel: "loud", LogFormat: "xml"}
	err := config.Validate()
	if err == nil {
		t.Fatal("Validate: want error, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("Validate error %q, want both log_level and log_format mentioned", err)
	}
}
