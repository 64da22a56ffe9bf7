// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the inspector's YAML configuration. Every field can be
// overridden by a KLAXON_* environment variable, and the store and
// passphrase paths by flags on top of that.
type Config struct {
	// Store is the account store directory.
	Store string `yaml:"store"`

	// PassphraseFile holds the store passphrase for encrypted stores,
	// "-" to read it from stdin. Empty means prompt on the terminal.
	PassphraseFile string `yaml:"passphrase_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// DefaultConfigPath returns the conventional config location,
// typically ~/.config/klaxon/inspect.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(dir, "klaxon", "inspect.yaml"), nil
}

// LoadConfig reads a configuration file, expands ${VAR} references in
// its path fields, and applies KLAXON_* environment overrides. A
// missing file is an error only when explicit is true; otherwise the
// defaults apply.
func LoadConfig(path string, explicit bool) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No file at the conventional location: defaults plus
		// environment.
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	config.Store = expandVars(config.Store)
	config.PassphraseFile = expandVars(config.PassphraseFile)

	if v := os.Getenv("KLAXON_STORE"); v != "" {
		config.Store = v
	}
	if v := os.Getenv("KLAXON_PASSPHRASE_FILE"); v != "" {
		config.PassphraseFile = v
	}
	if v := os.Getenv("KLAXON_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("KLAXON_LOG_FORMAT"); v != "" {
		config.LogFormat = v
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the enumerated fields, reporting every problem at
// once.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: must be debug, info, warn, or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds the stderr logger described by the config.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	options := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}

// varPattern matches ${VAR} and ${VAR:-default} references.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandVars substitutes ${VAR} references from the environment.
// ${VAR:-default} falls back to the default when VAR is unset or
// empty; a plain ${VAR} with no value is left as written so the error
// surfaces in the path that uses it.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]

		name, fallback, hasFallback := strings.Cut(name, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		return match
	})
}
