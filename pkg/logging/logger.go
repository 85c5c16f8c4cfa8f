// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for Aleutian
// components.
//
// The service packages log through the process-wide slog default;
// Setup installs a handler on it once at startup. Output goes to
// stderr following Unix conventions, in text for humans or JSON for
// machine processing.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Config configures the process logger.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info".
	Level string

	// JSON selects JSON output instead of human-readable text.
	JSON bool

	// Service is included in every record as the "service" attribute.
	Service string
}

// Setup installs the configured handler as the slog default.
//
// # Thread Safety
//
// Call once at application startup, before any goroutine logs.
func Setup(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// parseLevel maps a level name to slog.Level. Empty means info.
func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
