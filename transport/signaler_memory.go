// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/mirror/lib/clock"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. Two WebRTCTransport
// instances sharing one MemorySignaler can establish PeerConnections
// without any network signaling. The host's HTTP signaling routes are
// also backed by one, so joiners reach it through HTTPSignaler.
type MemorySignaler struct {
	clock clock.Clock

	mu       sync.Mutex
	offers   map[string]SignalMessage // key: "offerer|target"
	answers  map[string]SignalMessage // key: "offerer|answerer"
	lastSeen map[string]time.Time
}

// NewMemorySignaler creates a new in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		clock:    clock.Real(),
		offers:   make(map[string]SignalMessage),
		answers:  make(map[string]SignalMessage),
		lastSeen: make(map[string]time.Time),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, offerer, target, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offers[offerer+signalingSeparator+target] = SignalMessage{
		Peer:      offerer,
		SDP:       sdp,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offerer, answerer, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers[offerer+signalingSeparator+answerer] = SignalMessage{
		Peer:      answerer,
		SDP:       sdp,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, target string) ([]SignalMessage, error) {
	return s.pollSignals(target, s.offers, "offers", matchOfferKey)
}

func (s *MemorySignaler) PollAnswers(_ context.Context, offerer string) ([]SignalMessage, error) {
	return s.pollSignals(offerer, s.answers, "answers", matchAnswerKey)
}

// Forget drops every offer and answer involving peer, as offerer,
// target, or answerer. The WebRTC transport calls it when an endpoint
// closes so a long-running host does not accumulate stale SDP.
func (s *MemorySignaler) Forget(_ context.Context, peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for label, store := range map[string]map[string]SignalMessage{"offers": s.offers, "answers": s.answers} {
		for key := range store {
			first, second, _ := strings.Cut(key, signalingSeparator)
			if first == peer || second == peer {
				delete(store, key)
				delete(s.lastSeen, label+":"+key)
			}
		}
	}
	return nil
}

// pollSignals iterates a signal store and returns messages whose keys match
// the given matcher, filtering out already-seen timestamps.
func (s *MemorySignaler) pollSignals(peer string, store map[string]SignalMessage, storeLabel string, match signalKeyMatcher) ([]SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage

	for key, message := range store {
		if _, ok := match(key, peer); !ok {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339Nano, message.Timestamp)
		if err != nil {
			continue
		}

		seenKey := storeLabel + ":" + key
		if last, ok := s.lastSeen[seenKey]; ok && !timestamp.After(last) {
			continue
		}
		s.lastSeen[seenKey] = timestamp

		messages = append(messages, message)
	}

	return messages, nil
}
