// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
)

// errAttemptDecided is returned when Accept or Reject is called on an
// attempt that was already accepted or rejected.
var errAttemptDecided = errors.New("inbound attempt already decided")

// inboundAttempt adapts transport-specific accept and reject functions
// to InboundAttempt, enforcing that only the first decision takes
// effect.
type inboundAttempt struct {
	remote string
	accept func() (Conn, error)
	reject func() error

	once sync.Once
}

func (a *inboundAttempt) RemotePeer() string { return a.remote }

func (a *inboundAttempt) Accept() (Conn, error) {
	var conn Conn
	err := errAttemptDecided
	a.once.Do(func() {
		conn, err = a.accept()
	})
	return conn, err
}

func (a *inboundAttempt) Reject() error {
	err := errAttemptDecided
	a.once.Do(func() {
		err = nil
		if a.reject != nil {
			err = a.reject()
		}
	})
	return err
}

// attemptQueue is the Listener half shared by transports whose attempts
// originate on many goroutines (HTTP handlers, in-process dialers).
// Producers hand attempts to incoming, which is never closed; a single
// forwarder moves them to attempts and closes attempts when the
// listener stops, so closing never races a send.
type attemptQueue struct {
	incoming chan InboundAttempt
	attempts chan InboundAttempt
	onClose  func()

	closeOnce sync.Once
	closed    chan struct{}
}

func newAttemptQueue(ctx context.Context, onClose func()) *attemptQueue {
	queue := &attemptQueue{
		incoming: make(chan InboundAttempt),
		attempts: make(chan InboundAttempt),
		onClose:  onClose,
		closed:   make(chan struct{}),
	}
	go queue.forward(ctx)
	return queue
}

func (q *attemptQueue) Attempts() <-chan InboundAttempt { return q.attempts }

func (q *attemptQueue) Close() error {
	q.closeOnce.Do(func() {
		if q.onClose != nil {
			q.onClose()
		}
		close(q.closed)
	})
	return nil
}

// offer hands attempt to the listener. It fails when the listener stops
// or ctx ends first.
func (q *attemptQueue) offer(ctx context.Context, attempt InboundAttempt) error {
	select {
	case q.incoming <- attempt:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *attemptQueue) forward(ctx context.Context) {
	defer close(q.attempts)
	for {
		select {
		case attempt := <-q.incoming:
			select {
			case q.attempts <- attempt:
			case <-q.closed:
				attempt.Reject()
				return
			case <-ctx.Done():
				attempt.Reject()
				q.Close()
				return
			}
		case <-q.closed:
			return
		case <-ctx.Done():
			q.Close()
			return
		}
	}
}
