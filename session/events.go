// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"

	"github.com/bureau-foundation/mirror/transport"
)

// EventKind distinguishes session events.
type EventKind int

const (
	// ConnectionAdded reports a connection inserted into the session.
	ConnectionAdded EventKind = iota + 1

	// ConnectionRemoved reports a connection removed after it closed.
	ConnectionRemoved
)

func (k EventKind) String() string {
	switch k {
	case ConnectionAdded:
		return "added"
	case ConnectionRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one change to the session's connection set.
type Event struct {
	Kind EventKind
	Conn transport.Conn

	// Inbound is true for connections accepted as host.
	Inbound bool
}

// subscriber buffers events without bound so the Manager never blocks
// on a slow reader and a reader never misses an event. A single
// goroutine moves queued events to out in order.
type subscriber struct {
	out  chan Event
	wake chan struct{}
	stop chan struct{}

	stopOnce sync.Once

	mu       sync.Mutex
	queue    []Event
	finished bool
}

func newSubscriber() *subscriber {
	s := &subscriber{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(event Event) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.notify()
}

// finish closes out once everything queued so far is delivered.
func (s *subscriber) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.notify()
}

// cancel closes out without draining.
func (s *subscriber) cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *subscriber) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}
		event := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- event:
		case <-s.stop:
			return
		}
	}
}
