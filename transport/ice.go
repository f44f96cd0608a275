// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are the public STUN servers used when no ICE
// servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// ICEConfig holds ICE server configuration for WebRTC PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering. An empty list gathers host candidates only,
	// which is enough on one LAN and in tests.
	Servers []webrtc.ICEServer
}

// DefaultICEConfig returns a config using DefaultSTUNServers.
func DefaultICEConfig() ICEConfig {
	return ICEConfigFromURLs(DefaultSTUNServers)
}

// ICEConfigFromURLs builds a config with one ICE server per URL. TURN
// servers needing credentials are not expressible here.
func ICEConfigFromURLs(urls []string) ICEConfig {
	if len(urls) == 0 {
		return ICEConfig{}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, url := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return ICEConfig{Servers: servers}
}
