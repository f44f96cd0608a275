// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/mirror/lib/identity"
	"github.com/bureau-foundation/mirror/transport"
)

var (
	// ErrInvalidIdentity rejects a remote identity before any I/O.
	ErrInvalidIdentity = identity.ErrInvalid

	// ErrPeerUnreachable means the remote peer could not be reached,
	// including expiry of a connect timeout.
	ErrPeerUnreachable = transport.ErrPeerUnreachable

	// ErrCanceled resolves a Pending attempt that was canceled.
	ErrCanceled = errors.New("connection attempt canceled")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("session manager closed")

	// ErrAlreadyListening is returned by a second Listen.
	ErrAlreadyListening = errors.New("session manager is already listening")
)

// TransportError wraps a transport failure other than unreachability.
type TransportError struct {
	Peer string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Peer, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
