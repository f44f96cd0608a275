// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/mirror/lib/clock"
	"github.com/bureau-foundation/mirror/lib/identity"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
	"github.com/bureau-foundation/mirror/transport"
)

// errConnectTimeout is the cancellation cause of an attempt that ran
// past Config.ConnectTimeout.
var errConnectTimeout = errors.New("connect timeout")

// Config configures a Manager.
type Config struct {
	// LocalPeer is this device's identity. Required, must be valid.
	LocalPeer string

	// Transport carries connections. Required.
	Transport transport.Transport

	// Clock drives the connect timeout. Nil means the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// ConnectTimeout bounds every outbound attempt. Expiry fails the
	// attempt with ErrPeerUnreachable. Zero means no bound beyond the
	// caller's context and the transport's own timeouts.
	ConnectTimeout time.Duration
}

// Manager owns the open connections of one device.
type Manager struct {
	localPeer      string
	transport      transport.Transport
	clock          clock.Clock
	logger         *slog.Logger
	connectTimeout time.Duration

	mu          sync.Mutex
	closed      bool
	listener    transport.Listener
	entries     map[string]*entry
	sequence    uint64
	pending     map[string]*Pending
	subscribers []*subscriber
}

// entry is one open connection and the endpoint that created it, nil
// for inbound connections. The endpoint lives exactly as long as the
// entry.
type entry struct {
	conn     transport.Conn
	endpoint transport.Endpoint
	inbound  bool
	sequence uint64
}

// New creates a Manager for config.LocalPeer.
func New(config Config) (*Manager, error) {
	if err := identity.Validate(config.LocalPeer); err != nil {
		return nil, fmt.Errorf("local peer: %w", err)
	}
	if config.Transport == nil {
		return nil, errors.New("session manager requires a transport")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Manager{
		localPeer:      config.LocalPeer,
		transport:      config.Transport,
		clock:          config.Clock,
		logger:         config.Logger.With("local_peer", config.LocalPeer),
		connectTimeout: config.ConnectTimeout,
		entries:        make(map[string]*entry),
		pending:        make(map[string]*Pending),
	}, nil
}

// LocalPeer returns this device's identity.
func (m *Manager) LocalPeer() string { return m.localPeer }

// ConnectTimeout returns the bound applied to outbound attempts.
func (m *Manager) ConnectTimeout() time.Duration { return m.connectTimeout }

// JoinURL returns the link a joiner follows to reach this device.
func (m *Manager) JoinURL(baseURL string) string {
	return rendezvous.Encode(m.localPeer, baseURL)
}

// Subscribe returns a channel of session events in the order they
// happened, and a function that stops delivery. The channel is closed
// after the Manager closes and every earlier event has been received,
// or immediately on unsubscribe.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	s := newSubscriber()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.finish()
		return s.out, func() {}
	}
	m.subscribers = append(m.subscribers, s)
	m.mu.Unlock()

	return s.out, func() {
		m.mu.Lock()
		m.subscribers = slices.DeleteFunc(m.subscribers, func(other *subscriber) bool { return other == s })
		m.mu.Unlock()
		s.cancel()
	}
}

// emitLocked queues event for every subscriber. Callers hold m.mu, which
// orders events across goroutines.
func (m *Manager) emitLocked(event Event) {
	for _, s := range m.subscribers {
		s.push(event)
	}
}

// Connections returns the open connections in insertion order. A
// connection that has closed is never listed, even if the watcher has
// not yet removed its entry.
func (m *Manager) Connections() []transport.Conn {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.conn.IsOpen() {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.sequence, b.sequence)
	})
	conns := make([]transport.Conn, len(entries))
	for i, e := range entries {
		conns[i] = e.conn
	}
	return conns
}

// Connection returns the open connection with id.
func (m *Manager) Connection(id string) (transport.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !e.conn.IsOpen() {
		return nil, false
	}
	return e.conn, true
}

// Listen starts accepting inbound connections under the local identity
// until ctx is done or the Manager closes. Attempts from peers whose
// claimed identity is invalid are rejected.
func (m *Manager) Listen(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.listener != nil {
		return ErrAlreadyListening
	}

	listener, err := m.transport.Listen(ctx, m.localPeer)
	if err != nil {
		return fmt.Errorf("listening as %s: %w", m.localPeer, err)
	}
	m.listener = listener

	go m.acceptLoop(listener)
	m.logger.Info("hosting")
	return nil
}

func (m *Manager) acceptLoop(listener transport.Listener) {
	for attempt := range listener.Attempts() {
		remote := attempt.RemotePeer()
		if !identity.IsValid(remote) {
			m.logger.Warn("rejecting connection from invalid identity", "peer", remote)
			attempt.Reject()
			continue
		}
		go m.accept(attempt)
	}
}

func (m *Manager) accept(attempt transport.InboundAttempt) {
	conn, err := attempt.Accept()
	if err != nil {
		m.logger.Warn("accepting connection failed", "peer", attempt.RemotePeer(), "error", err)
		return
	}
	if err := m.insert(conn, nil, true); err != nil {
		m.logger.Debug("discarding accepted connection", "peer", conn.RemotePeer(), "error", err)
	}
}

// ConnectTo starts an outbound attempt to remote. Invalid identities
// fail immediately with ErrInvalidIdentity and no I/O. Everything else
// resolves through the returned Pending; ctx bounds the attempt, and
// its deadline expiring counts as ErrPeerUnreachable.
func (m *Manager) ConnectTo(ctx context.Context, remote string) (*Pending, error) {
	if err := identity.Validate(remote); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	endpoint, err := m.transport.NewEndpoint(m.localPeer)
	if err != nil {
		m.mu.Unlock()
		return nil, &TransportError{Peer: remote, Err: err}
	}
	attemptCtx, cancel := context.WithCancelCause(ctx)
	pending := newPending(remote, cancel)
	m.pending[pending.id] = pending
	m.mu.Unlock()

	var timer *clock.Timer
	if m.connectTimeout > 0 {
		timer = m.clock.AfterFunc(m.connectTimeout, func() { cancel(errConnectTimeout) })
	}

	m.logger.Info("connecting", "peer", remote, "attempt", pending.id, "endpoint", endpoint.ID())
	go m.dial(attemptCtx, pending, endpoint, timer)
	return pending, nil
}

func (m *Manager) dial(ctx context.Context, pending *Pending, endpoint transport.Endpoint, timer *clock.Timer) {
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		pending.cancel(nil)

		m.mu.Lock()
		delete(m.pending, pending.id)
		m.mu.Unlock()
	}()

	remote := pending.remote
	conn, err := endpoint.Open(ctx, remote)
	if err == nil && context.Cause(ctx) != nil {
		// Canceled after the transport finished opening.
		conn.Close()
		err = ctx.Err()
	}
	if err == nil {
		err = m.insert(conn, endpoint, false)
	}
	if err != nil {
		endpoint.Close()
		err = m.attemptError(ctx, remote, err)
		m.logger.Warn("connection attempt failed", "peer", remote, "attempt", pending.id, "error", err)
		pending.fail(err)
		return
	}
	pending.open(conn)
}

// attemptError maps an Open failure to the session error taxonomy.
func (m *Manager) attemptError(ctx context.Context, remote string, err error) error {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errConnectTimeout):
		return fmt.Errorf("%w: %s did not answer within %s", ErrPeerUnreachable, remote, m.connectTimeout)
	case errors.Is(cause, ErrCanceled), errors.Is(cause, ErrClosed):
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s did not answer before the deadline", ErrPeerUnreachable, remote)
	case errors.Is(cause, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, cause)
	}

	switch {
	case errors.Is(err, ErrPeerUnreachable), errors.Is(err, ErrClosed):
		return err
	default:
		return &TransportError{Peer: remote, Err: err}
	}
}

// insert adds an open connection to the session and watches it for
// close. A connection that is already closed, or arrives after the
// Manager closed, is closed and not inserted.
func (m *Manager) insert(conn transport.Conn, endpoint transport.Endpoint, inbound bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	select {
	case <-conn.Done():
		m.mu.Unlock()
		return fmt.Errorf("%w: connection to %s closed while opening", ErrPeerUnreachable, conn.RemotePeer())
	default:
	}

	m.sequence++
	m.entries[conn.ID()] = &entry{conn: conn, endpoint: endpoint, inbound: inbound, sequence: m.sequence}
	m.emitLocked(Event{Kind: ConnectionAdded, Conn: conn, Inbound: inbound})
	m.mu.Unlock()

	m.logger.Info("connection added",
		"peer", conn.RemotePeer(),
		"connection", conn.ID(),
		"inbound", inbound,
	)

	go func() {
		<-conn.Done()
		m.remove(conn.ID())
	}()
	return nil
}

// remove drops the connection with id from the session, closes it,
// and releases its endpoint. Removing an absent id does nothing.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.entries, id)
	m.emitLocked(Event{Kind: ConnectionRemoved, Conn: e.conn, Inbound: e.inbound})
	m.mu.Unlock()

	e.conn.Close()
	if e.endpoint != nil {
		e.endpoint.Close()
	}

	m.logger.Info("connection removed", "peer", e.conn.RemotePeer(), "connection", id)
}

// CloseConnection closes conn, removes it from the session, and
// releases its endpoint. When it returns the connection is no longer
// in Connections. Closing twice, or closing a connection the session
// never held, is harmless.
func (m *Manager) CloseConnection(conn transport.Conn) {
	m.remove(conn.ID())
	conn.Close()
}

// Close stops listening, fails pending attempts with ErrClosed, closes
// every connection, and ends every subscription after its remaining
// events are delivered.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	listener := m.listener
	pending := make([]*Pending, 0, len(m.pending))
	for _, p := range m.pending {
		pending = append(pending, p)
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, p := range pending {
		p.cancel(ErrClosed)
	}
	for _, id := range ids {
		m.remove(id)
	}

	m.mu.Lock()
	subscribers := m.subscribers
	m.subscribers = nil
	m.mu.Unlock()
	for _, s := range subscribers {
		s.finish()
	}

	m.logger.Info("session closed")
	return nil
}
