// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command pagefs mounts an empty in-memory page-backed filesystem
// and serves it until interrupted. Everything written to the mount
// lives in anonymous memory and is gone when the process exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/pagefs/lib/pagefs"
	pagefsfuse "github.com/bureau-foundation/pagefs/lib/pagefs/fuse"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		mountpoint string
		allowOther bool
		maxPages   int
		maxNodes   int64
		logLevel   string
	)
	pflag.StringVar(&configPath, "config", "", "YAML config file (flags override its values)")
	pflag.StringVar(&mountpoint, "mountpoint", "", "mount directory (required unless set in config)")
	pflag.BoolVar(&allowOther, "allow-other", false, "permit other users to access the mount")
	pflag.IntVar(&maxPages, "max-pages", 0, "page memory cap in 4 KiB pages (0 = default)")
	pflag.Int64Var(&maxNodes, "max-nodes", 0, "inode creation cap (0 = default)")
	pflag.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	pflag.Parse()

	config := &Config{}
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	if pflag.CommandLine.Changed("mountpoint") {
		config.Mountpoint = mountpoint
	}
	if pflag.CommandLine.Changed("allow-other") {
		config.AllowOther = allowOther
	}
	if pflag.CommandLine.Changed("max-pages") {
		config.MaxPages = maxPages
	}
	if pflag.CommandLine.Changed("max-nodes") {
		config.MaxNodes = maxNodes
	}
	if pflag.CommandLine.Changed("log-level") {
		config.LogLevel = logLevel
	}
	if config.Mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}

	level, err := config.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fsys, err := pagefs.New(pagefs.Options{
		MaxPages: config.MaxPages,
		MaxNodes: config.MaxNodes,
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating filesystem: %w", err)
	}

	server, err := pagefsfuse.Mount(pagefsfuse.Options{
		Mountpoint: config.Mountpoint,
		FS:         fsys,
		AllowOther: config.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("unmounting", "mountpoint", config.Mountpoint)
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", config.Mountpoint, err)
	}
	server.Wait()
	return nil
}
