// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// messageConn implements the delivery and lifecycle half of Conn. Each
// transport supplies the wire half: a send function and a teardown that
// releases the underlying channel.
//
// Inbound messages queue without bound and are handed to handlers by a
// single goroutine, which gives every Conn one ordered, non-concurrent
// stream of events regardless of how the transport reads.
type messageConn struct {
	id       string
	remote   string
	logger   *slog.Logger
	send     func(data []byte) error
	teardown func()

	closing atomic.Bool
	done    chan struct{}

	mu          sync.Mutex
	wake        *sync.Cond
	closed      bool
	pending     [][]byte
	handlers    []messageHandler
	nextHandler uint64
}

type messageHandler struct {
	id uint64
	fn func(data []byte)
}

func newMessageConn(remote string, send func([]byte) error, teardown func(), logger *slog.Logger) *messageConn {
	conn := &messageConn{
		id:       uuid.NewString(),
		remote:   remote,
		logger:   logger,
		send:     send,
		teardown: teardown,
		done:     make(chan struct{}),
	}
	conn.wake = sync.NewCond(&conn.mu)
	go conn.deliverLoop()
	return conn
}

func (c *messageConn) ID() string { return c.id }

func (c *messageConn) RemotePeer() string { return c.remote }

func (c *messageConn) Done() <-chan struct{} { return c.done }

func (c *messageConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *messageConn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrClosed
	}
	return c.send(data)
}

func (c *messageConn) OnMessage(handler func(data []byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHandler++
	id := c.nextHandler
	c.handlers = append(c.handlers, messageHandler{id: id, fn: handler})
	c.wake.Broadcast()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.handlers {
			if entry.id == id {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// Close closes the Conn locally.
func (c *messageConn) Close() error {
	c.shutdown("local")
	return nil
}

// deliver queues an inbound message. Messages arriving after close are
// dropped.
func (c *messageConn) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, data)
	c.wake.Broadcast()
}

// shutdown marks the Conn closed, stops delivery, and runs teardown
// exactly once. A transport calls it with reason "remote" when the
// underlying channel goes away.
func (c *messageConn) shutdown(reason string) {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.wake.Broadcast()
	c.mu.Unlock()

	if c.teardown != nil {
		c.teardown()
	}
	close(c.done)

	c.logger.Debug("connection closed",
		"connection", c.id,
		"peer", c.remote,
		"reason", reason,
	)
}

func (c *messageConn) deliverLoop() {
	for {
		c.mu.Lock()
		for !c.closed && (len(c.pending) == 0 || len(c.handlers) == 0) {
			c.wake.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		data := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		handlers := append([]messageHandler(nil), c.handlers...)
		c.mu.Unlock()

		for _, handler := range handlers {
			if !c.IsOpen() {
				return
			}
			handler.fn(data)
		}
	}
}
