// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/mirror/transport"
)

// State is the lifecycle position of an outbound attempt: Pending, then
// Open and finally Closed, or Failed when it never opened. Closed and
// Failed are terminal.
type State int

const (
	StatePending State = iota
	StateOpen
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pending is an outbound connection attempt. It resolves exactly once:
// Opened receives the connection, or Failed receives the error. Both
// channels are buffered, so nobody has to be reading when it resolves.
type Pending struct {
	id     string
	remote string
	cancel context.CancelCauseFunc

	opened   chan transport.Conn
	failed   chan error
	resolved chan struct{}

	mu    sync.Mutex
	state State
	conn  transport.Conn
	err   error
}

func newPending(remote string, cancel context.CancelCauseFunc) *Pending {
	return &Pending{
		id:       uuid.NewString(),
		remote:   remote,
		cancel:   cancel,
		opened:   make(chan transport.Conn, 1),
		failed:   make(chan error, 1),
		resolved: make(chan struct{}),
	}
}

// ID identifies the attempt in logs.
func (p *Pending) ID() string { return p.id }

// RemotePeer is the identity being dialed.
func (p *Pending) RemotePeer() string { return p.remote }

// State reports where the attempt is. An opened attempt reads as
// StateClosed as soon as its connection stops being open.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateOpen && !p.conn.IsOpen() {
		return StateClosed
	}
	return p.state
}

// Opened receives the connection once it is open and in the session.
func (p *Pending) Opened() <-chan transport.Conn { return p.opened }

// Failed receives the reason the attempt failed.
func (p *Pending) Failed() <-chan error { return p.failed }

// Cancel abandons the attempt if it has not resolved yet. The attempt
// then fails with ErrCanceled and its endpoint is released. Canceling
// a resolved attempt does nothing.
func (p *Pending) Cancel() {
	p.cancel(ErrCanceled)
}

// Wait blocks until the attempt resolves or ctx is done. Returning
// because of ctx leaves the attempt running.
func (p *Pending) Wait(ctx context.Context) (transport.Conn, error) {
	select {
	case <-p.resolved:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.conn, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) open(conn transport.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateOpen
	p.conn = conn
	p.opened <- conn
	close(p.resolved)
}

func (p *Pending) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateFailed
	p.err = err
	p.failed <- err
	close(p.resolved)
}
