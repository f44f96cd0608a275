// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport opens the device-to-device channels that mirror
// sessions run over.
//
// The package defines the contract the session layer consumes: a
// [Transport] creates a [Listener] for a host, yielding
// [InboundAttempt]s to accept or reject, and disposable [Endpoint]s for
// a joiner's outbound attempts. Both sides end up holding a [Conn]: one
// reliable, ordered message channel to exactly one remote peer, with
// in-order single-goroutine delivery and no delivery after close.
//
// Three implementations exist:
//
//   - [WebRTCTransport] uses pion/webrtc data channels with vanilla
//     ICE. Each connection has its own PeerConnection and one "mirror"
//     data channel. Offers and answers travel through a [Signaler]:
//     [MemorySignaler] in process, [HTTPSignaler] through the host's
//     /api/signal routes, or [RedisSignaler] through a shared broker.
//   - [WebSocketTransport] dials the host's /api/ws upgrade route
//     directly, for peers that can reach the host's HTTP server.
//   - [MemoryNetwork] connects listeners and endpoints in one process,
//     with fault injection for tests.
//
// Endpoint ids are the local peer identity plus a unique suffix
// ([EndpointID]), so one device can run several attempts at once and
// a host can still recover the joiner's identity
// ([PeerFromEndpointID]).
//
// Errors: [ErrPeerUnreachable] when no channel could be established,
// [ErrClosed] for operations on closed objects, [ErrEndpointUsed] for a
// second Open on one endpoint. Anything else is a transport failure the
// caller reports as such.
package transport
