// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/xid"
)

var (
	// ErrPeerUnreachable means no channel to the remote peer could be
	// established: nobody is listening under that identity, signaling
	// timed out, or ICE failed.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrClosed is returned by operations on a closed Conn, Endpoint,
	// or Listener.
	ErrClosed = errors.New("transport closed")

	// ErrEndpointUsed is returned by a second Open on the same Endpoint.
	ErrEndpointUsed = errors.New("endpoint already used")
)

// Conn is one reliable, ordered, bidirectional message channel to
// exactly one remote peer.
//
// Messages are delivered to OnMessage handlers in arrival order, one at
// a time, on a goroutine owned by the Conn. Messages that arrive before
// the first handler is registered are held until one is. No handler is
// invoked after the Conn closes.
type Conn interface {
	// ID identifies this Conn uniquely within the process.
	ID() string

	// RemotePeer is the identity of the peer at the other end.
	RemotePeer() string

	// Send transmits one message. It returns ErrClosed after close.
	Send(data []byte) error

	// OnMessage registers a handler for inbound messages. The returned
	// function unregisters it.
	OnMessage(handler func(data []byte)) (remove func())

	// Done is closed when the Conn closes, locally or remotely.
	Done() <-chan struct{}

	// IsOpen reports whether the Conn is still open.
	IsOpen() bool

	// Close closes the Conn. It is idempotent.
	Close() error
}

// Transport creates listeners for inbound connections and disposable
// endpoints for outbound ones.
type Transport interface {
	// Listen registers localPeer as reachable and returns a Listener
	// yielding inbound attempts. The listener stops when ctx is done.
	Listen(ctx context.Context, localPeer string) (Listener, error)

	// NewEndpoint allocates a transient local endpoint for one outbound
	// attempt on behalf of localPeer.
	NewEndpoint(localPeer string) (Endpoint, error)
}

// Listener yields inbound connection attempts.
type Listener interface {
	// Attempts delivers inbound attempts. It is closed when the
	// listener stops.
	Attempts() <-chan InboundAttempt

	// Close stops the listener. Established Conns are unaffected.
	Close() error
}

// InboundAttempt is a remote peer asking to connect. Exactly one of
// Accept or Reject should be called.
type InboundAttempt interface {
	// RemotePeer is the identity the remote peer claims.
	RemotePeer() string

	// Accept completes the handshake and returns the open Conn.
	Accept() (Conn, error)

	// Reject refuses the attempt.
	Reject() error
}

// Endpoint is a disposable local endpoint for a single outbound
// attempt. Closing it closes any Conn it opened.
type Endpoint interface {
	// ID is the endpoint's signaling identity, derived from the local
	// peer with a unique suffix (see EndpointID).
	ID() string

	// Open connects to remotePeer. An Endpoint opens at most once; a
	// second call returns ErrEndpointUsed.
	Open(ctx context.Context, remotePeer string) (Conn, error)

	// Close releases the endpoint. It is idempotent.
	Close() error
}

// endpointSeparator joins a peer identity and an endpoint suffix.
// Identities never contain it.
const endpointSeparator = "~"

// EndpointID returns a fresh endpoint identity for localPeer, unique so
// several endpoints of one peer can coexist in signaling.
func EndpointID(localPeer string) string {
	return localPeer + endpointSeparator + xid.New().String()
}

// PeerFromEndpointID strips the endpoint suffix, returning the peer
// identity an endpoint speaks for. Plain peer identities pass through.
func PeerFromEndpointID(id string) string {
	peer, _, _ := strings.Cut(id, endpointSeparator)
	return peer
}
