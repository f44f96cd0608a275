// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the set of live mirror connections for one
// device.
//
// A [Manager] plays either role. As a host it listens under its own
// identity and inserts every accepted connection; as a joiner it dials
// a remote identity through a disposable transport endpoint per
// attempt. Either way the session holds only open connections: each
// one is inserted when it opens and removed, together with the
// endpoint that created it, the moment it closes. Subscribers observe
// the set through ordered added and removed events.
//
// Outbound attempts never block the caller. [Manager.ConnectTo] returns
// a [Pending] handle that resolves exactly once, through its Opened
// channel on success or its Failed channel with [ErrPeerUnreachable],
// a [*TransportError], or [ErrCanceled]. Failed attempts are not
// retried. [Pending.State] walks Pending, Open, Closed, or ends at
// Failed.
package session
