// Copyright 2025 SPDX-FileCopyrightText: SAP SE or an SAP affiliate company and Gardener contributors
// SPDX-License-Identifier: Apache-2.0

// Package log builds the process logger: a logr.Logger backed by log/slog,
// the same pairing the rest of the ambient stack uses.
package log

import (
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
)

// NewLogger creates a logr.Logger with a slog backend writing to stderr.
func NewLogger(level string) logr.Logger {
	return NewLoggerWithOutput(level, os.Stderr)
}

// NewLoggerWithOutput creates a logr.Logger with a slog backend writing to
// output; debug level gets human-readable text, everything else gets JSON
// suitable for log aggregation.
func NewLoggerWithOutput(level string, output *os.File) logr.Logger {
	slogLevel := parseSlogLevel(level)

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: slogLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if slogLevel == slog.LevelDebug {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return logr.FromSlogHandler(handler)
}

func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
