// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"
)

func TestICEConfigFromURLs_Empty(t *testing.T) {
	config := ICEConfigFromURLs(nil)
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers for nil URLs, got %d", len(config.Servers))
	}
}

func TestICEConfigFromURLs_OneServerPerURL(t *testing.T) {
	config := ICEConfigFromURLs([]string{"stun:stun.lan:3478", "stun:backup.lan:3478"})
	if len(config.Servers) != 2 {
		t.Fatalf("expected 2 ICE server entries, got %d", len(config.Servers))
	}
	if got := config.Servers[1].URLs; len(got) != 1 || got[0] != "stun:backup.lan:3478" {
		t.Errorf("second server URLs = %v", got)
	}
}

func TestDefaultICEConfig(t *testing.T) {
	config := DefaultICEConfig()
	if len(config.Servers) != len(DefaultSTUNServers) {
		t.Fatalf("expected %d default servers, got %d", len(DefaultSTUNServers), len(config.Servers))
	}
	if config.Servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("first server = %v", config.Servers[0].URLs)
	}
}
