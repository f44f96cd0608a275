// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Compile-time interface check.
var _ Transport = (*MemoryNetwork)(nil)

// MemoryNetwork is an in-process Transport. Listeners and endpoints on
// the same MemoryNetwork reach each other directly, with no signaling
// and no sockets. Tests use it to drive session and mirror behavior
// deterministically, and to inject faults: Block makes attempts to a
// peer hang until their context ends, FailNext makes the next attempt
// fail with a chosen error.
type MemoryNetwork struct {
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[string]*memoryListener
	blocked   map[string]bool
	failures  map[string]error
	endpoints map[string]*memoryEndpoint
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork(logger *slog.Logger) *MemoryNetwork {
	return &MemoryNetwork{
		logger:    logger,
		listeners: make(map[string]*memoryListener),
		blocked:   make(map[string]bool),
		failures:  make(map[string]error),
		endpoints: make(map[string]*memoryEndpoint),
	}
}

// Block makes attempts to peer hang until their context is done.
func (n *MemoryNetwork) Block(peer string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked[peer] = true
}

// Unblock reverses Block.
func (n *MemoryNetwork) Unblock(peer string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked, peer)
}

// FailNext makes the next Open to peer return err.
func (n *MemoryNetwork) FailNext(peer string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[peer] = err
}

// LiveEndpoints returns the number of endpoints not yet closed.
func (n *MemoryNetwork) LiveEndpoints() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.endpoints)
}

// Listen registers localPeer. Only one listener per peer may exist.
func (n *MemoryNetwork) Listen(ctx context.Context, localPeer string) (Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.listeners[localPeer]; exists {
		return nil, fmt.Errorf("peer %s is already listening", localPeer)
	}

	listener := &memoryListener{}
	listener.attemptQueue = newAttemptQueue(ctx, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.listeners[localPeer] == listener {
			delete(n.listeners, localPeer)
		}
	})
	n.listeners[localPeer] = listener
	return listener, nil
}

// NewEndpoint allocates an endpoint for localPeer.
func (n *MemoryNetwork) NewEndpoint(localPeer string) (Endpoint, error) {
	endpoint := &memoryEndpoint{
		network: n,
		id:      EndpointID(localPeer),
		peer:    localPeer,
		closed:  make(chan struct{}),
	}

	n.mu.Lock()
	n.endpoints[endpoint.id] = endpoint
	n.mu.Unlock()

	return endpoint, nil
}

type memoryListener struct {
	*attemptQueue
}

type memoryEndpoint struct {
	network *MemoryNetwork
	id      string
	peer    string

	used      atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	conn Conn
}

func (e *memoryEndpoint) ID() string { return e.id }

func (e *memoryEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn != nil {
			conn.Close()
		}

		e.network.mu.Lock()
		delete(e.network.endpoints, e.id)
		e.network.mu.Unlock()
	})
	return nil
}

// memoryHandshake is the rendezvous between an Open waiting for a
// decision and the listener side deciding. abandoned is set when Open
// gives up, so a late Accept does not leave an orphaned host Conn.
type memoryHandshake struct {
	mu        sync.Mutex
	abandoned bool
	result    chan memoryResult
}

type memoryResult struct {
	conn Conn
	err  error
}

func (e *memoryEndpoint) Open(ctx context.Context, remotePeer string) (Conn, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrEndpointUsed
	}
	select {
	case <-e.closed:
		return nil, ErrClosed
	default:
	}

	network := e.network
	network.mu.Lock()
	failure := network.failures[remotePeer]
	delete(network.failures, remotePeer)
	blocked := network.blocked[remotePeer]
	listener := network.listeners[remotePeer]
	network.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if blocked {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.closed:
			return nil, ErrClosed
		}
	}
	if listener == nil {
		return nil, fmt.Errorf("%w: nobody is listening as %s", ErrPeerUnreachable, remotePeer)
	}

	handshake := &memoryHandshake{result: make(chan memoryResult, 1)}
	attempt := &inboundAttempt{
		remote: e.peer,
		accept: func() (Conn, error) {
			handshake.mu.Lock()
			defer handshake.mu.Unlock()
			if handshake.abandoned {
				return nil, fmt.Errorf("%w: %s gave up", ErrPeerUnreachable, e.peer)
			}
			host, joiner := newMemoryPair(remotePeer, e.peer, network.logger)
			handshake.result <- memoryResult{conn: joiner}
			return host, nil
		},
		reject: func() error {
			handshake.mu.Lock()
			defer handshake.mu.Unlock()
			if !handshake.abandoned {
				handshake.result <- memoryResult{err: fmt.Errorf("%w: %s rejected the connection", ErrPeerUnreachable, remotePeer)}
			}
			return nil
		},
	}

	offerCtx, cancelOffer := context.WithCancel(ctx)
	go func() {
		select {
		case <-e.closed:
			cancelOffer()
		case <-offerCtx.Done():
		}
	}()
	err := listener.offer(offerCtx, attempt)
	cancelOffer()
	if err != nil {
		select {
		case <-e.closed:
			return nil, ErrClosed
		default:
		}
		if errors.Is(err, ErrClosed) {
			return nil, fmt.Errorf("%w: %s stopped listening", ErrPeerUnreachable, remotePeer)
		}
		return nil, err
	}

	var result memoryResult
	select {
	case result = <-handshake.result:
	case <-listener.closed:
		result.err = fmt.Errorf("%w: %s stopped listening", ErrPeerUnreachable, remotePeer)
	case <-ctx.Done():
		result.err = ctx.Err()
	case <-e.closed:
		result.err = ErrClosed
	}

	if result.err != nil {
		handshake.mu.Lock()
		handshake.abandoned = true
		handshake.mu.Unlock()
		// Accept may have completed between the select and the lock.
		select {
		case late := <-handshake.result:
			if late.conn != nil {
				late.conn.Close()
			}
		default:
		}
		return nil, result.err
	}

	e.mu.Lock()
	e.conn = result.conn
	e.mu.Unlock()

	// Close may have run while the handshake was in flight.
	select {
	case <-e.closed:
		result.conn.Close()
		return nil, ErrClosed
	default:
	}
	return result.conn, nil
}

// newMemoryPair links two Conns back to back. Sending on one delivers
// to the other; closing either closes both.
func newMemoryPair(hostPeer, joinerPeer string, logger *slog.Logger) (host, joiner *messageConn) {
	host = newMessageConn(joinerPeer,
		func(data []byte) error {
			joiner.deliver(bytes.Clone(data))
			return nil
		},
		func() { joiner.shutdown("remote") },
		logger,
	)
	joiner = newMessageConn(hostPeer,
		func(data []byte) error {
			host.deliver(bytes.Clone(data))
			return nil
		},
		func() { host.shutdown("remote") },
		logger,
	)
	return host, joiner
}
