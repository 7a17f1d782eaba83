// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the mount configuration. Flags override file values.
type Config struct {
	// Mountpoint is the directory the filesystem is mounted on.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther permits other users to access the mount.
	AllowOther bool `yaml:"allow_other"`

	// MaxPages caps page memory (4 KiB each). Zero means the
	// built-in default of one million pages.
	MaxPages int `yaml:"max_pages"`

	// MaxNodes caps the number of inodes ever created.
	MaxNodes int64 `yaml:"max_nodes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) logLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
