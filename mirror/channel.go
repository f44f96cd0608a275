// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/mirror/transport"
)

// ErrDetached is returned by Push on a detached Channel. The local
// document is still updated.
var ErrDetached = errors.New("sync channel detached")

// Options configures Attach.
type Options struct {
	// Initial is the local document before anything is pushed or
	// received.
	Initial Document

	// SeedOnOpen sends Initial once when the channel attaches to an open
	// connection, so a joiner sees the host's document without waiting
	// for the host to type. Hosts set it; joiners do not.
	SeedOnOpen bool

	// OnChange, when set, is registered before the channel starts
	// listening, so it sees every received document.
	OnChange func(Document)

	Logger *slog.Logger
}

// Channel mirrors one document over one connection.
type Channel struct {
	conn   transport.Conn
	logger *slog.Logger

	seeded atomic.Bool
	remove func()

	mu       sync.Mutex
	state    Document
	detached bool

	listenersMu  sync.Mutex
	listeners    map[uint64]func(Document)
	nextListener uint64
}

// Attach starts mirroring over conn. The channel listens for sync
// messages until Detach; it never closes conn.
func Attach(conn transport.Conn, options Options) *Channel {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	channel := &Channel{
		conn:      conn,
		logger:    logger.With("peer", conn.RemotePeer(), "connection", conn.ID()),
		state:     options.Initial.Clone(),
		listeners: make(map[uint64]func(Document)),
	}
	if options.OnChange != nil {
		channel.OnChange(options.OnChange)
	}
	channel.remove = conn.OnMessage(channel.receive)

	if options.SeedOnOpen {
		channel.seed()
	}
	return channel
}

// seed sends the local document the first time the connection is seen
// open. Later calls do nothing.
func (c *Channel) seed() {
	if !c.conn.IsOpen() || !c.seeded.CompareAndSwap(false, true) {
		return
	}
	if err := c.send(c.State()); err != nil {
		c.logger.Warn("seeding document failed", "error", err)
		return
	}
	c.logger.Debug("seeded document")
}

// Conn returns the connection the channel mirrors over.
func (c *Channel) Conn() transport.Conn { return c.conn }

// State returns the current local document.
func (c *Channel) State() Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Push makes doc the local document and sends it when the connection is
// open. Nothing is queued for a closed connection.
func (c *Channel) Push(doc Document) error {
	c.mu.Lock()
	c.state = doc.Clone()
	detached := c.detached
	c.mu.Unlock()

	if detached {
		return ErrDetached
	}
	if !c.conn.IsOpen() {
		return nil
	}
	err := c.send(doc)
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

func (c *Channel) send(doc Document) error {
	data, err := EncodeMessage(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return c.conn.Send(data)
}

// OnChange registers fn to run with each document received from the
// remote peer, in arrival order. Calls never overlap. The returned
// function unregisters fn.
func (c *Channel) OnChange(fn func(Document)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// Detach stops listening. The connection stays open and the local
// document stays readable.
func (c *Channel) Detach() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	c.mu.Unlock()
	c.remove()
}

func (c *Channel) receive(data []byte) {
	doc, err := DecodeMessage(data)
	if err != nil {
		c.logger.Debug("discarding sync message", "error", err, "bytes", len(data))
		return
	}

	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.state = doc.Clone()
	c.mu.Unlock()

	c.listenersMu.Lock()
	listeners := make([]func(Document), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(doc.Clone())
	}
}
