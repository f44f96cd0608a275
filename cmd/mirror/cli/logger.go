// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/mirror/lib/config"
)

// LoggerOptions controls NewLogger.
type LoggerOptions struct {
	// Screen is true when a terminal UI owns stderr. Logs then go to
	// the configured file, or nowhere.
	Screen bool

	// Stderr overrides the default destination. Nil means os.Stderr.
	Stderr io.Writer
}

// NewLogger builds the process logger from the logging section of the
// configuration. With format auto it uses slog.TextHandler when stderr
// is a terminal and slog.JSONHandler otherwise. The returned close
// function releases the log file, if one was opened.
func NewLogger(logging config.LoggingConfig, options LoggerOptions) (*slog.Logger, func() error, error) {
	level, err := parseLevel(logging.Level)
	if err != nil {
		return nil, nil, err
	}

	destination := options.Stderr
	if destination == nil {
		destination = os.Stderr
	}
	closer := func() error { return nil }
	toFile := false

	switch {
	case logging.File != "":
		file, err := os.OpenFile(logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		destination = file
		closer = file.Close
		toFile = true
	case options.Screen:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closer, nil
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch logging.Format {
	case config.LogFormatText:
		handler = slog.NewTextHandler(destination, handlerOptions)
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(destination, handlerOptions)
	default:
		if !toFile && IsTerminal(destination) {
			handler = slog.NewTextHandler(destination, handlerOptions)
		} else {
			handler = slog.NewJSONHandler(destination, handlerOptions)
		}
	}
	return slog.New(handler), closer, nil
}

// NewCommandLogger creates a logger for commands that run before or
// without configuration: text on a terminal, JSON otherwise, at info.
func NewCommandLogger() *slog.Logger {
	logger, _, _ := NewLogger(config.LoggingConfig{Level: "info", Format: config.LogFormatAuto}, LoggerOptions{})
	return logger
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w any) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
