// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/mirror/lib/config"
)

func TestNewLogger_AutoIsJSONOffTerminal(t *testing.T) {
	var buffer bytes.Buffer
	logger, closeLog, err := NewLogger(config.LoggingConfig{Level: "info", Format: config.LogFormatAuto}, LoggerOptions{Stderr: &buffer})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closeLog()

	logger.Info("listening", "peer", "cozy-pine-otter")
	logger.Debug("hidden")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("output %q is not one JSON record: %v", buffer.String(), err)
	}
	if record["msg"] != "listening" || record["peer"] != "cozy-pine-otter" {
		t.Errorf("record = %v", record)
	}
}

func TestNewLogger_TextAndLevel(t *testing.T) {
	var buffer bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "debug", Format: config.LogFormatText}, LoggerOptions{Stderr: &buffer})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("polling", "peer", "cozy-pine-otter")
	if !strings.Contains(buffer.String(), "msg=polling") {
		t.Errorf("output = %q, want a text debug record", buffer.String())
	}
}

func TestNewLogger_ScreenWithoutFileDiscards(t *testing.T) {
	var buffer bytes.Buffer
	logger, _, err := NewLogger(config.LoggingConfig{Level: "debug", Format: config.LogFormatText}, LoggerOptions{Screen: true, Stderr: &buffer})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Error("not shown")
	if buffer.Len() != 0 {
		t.Errorf("output = %q, want nothing while the UI owns the screen", buffer.String())
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.log")
	logger, closeLog, err := NewLogger(config.LoggingConfig{Level: "info", Format: config.LogFormatAuto, File: path}, LoggerOptions{Screen: true})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("connection added", "connection", "c1")
	if err := closeLog(); err != nil {
		t.Fatalf("closing log: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"connection added"`) {
		t.Errorf("log file = %q, want a JSON record", data)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, _, err := NewLogger(config.LoggingConfig{Level: "loud"}, LoggerOptions{}); err == nil {
		t.Fatal("NewLogger with level loud succeeded, want error")
	}
}
