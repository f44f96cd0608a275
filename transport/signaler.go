// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
)

// Signaler abstracts the mechanism for exchanging WebRTC session
// descriptions between a host and the endpoints dialing it.
//
// The signaling model is vanilla ICE: all ICE candidates are gathered
// before the SDP is published, so connection establishment requires
// exactly one signaling round-trip (offer, then answer).
//
// Offerers are endpoint ids (see EndpointID), targets are host peer
// identities, so one host can hold offers from many joiners at once
// and a joiner retrying gets a fresh key.
type Signaler interface {
	// PublishOffer publishes a complete SDP offer from offerer directed
	// at target.
	PublishOffer(ctx context.Context, offerer, target, sdp string) error

	// PublishAnswer publishes a complete SDP answer from answerer to a
	// previously received offer from offerer.
	PublishAnswer(ctx context.Context, offerer, answerer, sdp string) error

	// PollOffers returns offers directed at target that this Signaler
	// has not returned before.
	PollOffers(ctx context.Context, target string) ([]SignalMessage, error)

	// PollAnswers returns answers to offers by offerer that this
	// Signaler has not returned before.
	PollAnswers(ctx context.Context, offerer string) ([]SignalMessage, error)
}

// SignalMessage represents a signaling message (offer or answer).
type SignalMessage struct {
	// Peer is the other party. For received offers this is the offerer;
	// for received answers, the answerer.
	Peer string `json:"peer"`

	// SDP is the complete Session Description Protocol string with all
	// ICE candidates embedded.
	SDP string `json:"sdp"`

	// Timestamp is the RFC 3339 creation time of the signal.
	Timestamp string `json:"timestamp"`
}

// signalingSeparator separates offerer and target in composite keys.
// Neither peer identities nor endpoint ids contain it.
const signalingSeparator = "|"

// signalKeyMatcher reports whether a composite "offerer|target" key
// concerns peer and, if so, returns the other party.
type signalKeyMatcher func(key, peer string) (other string, ok bool)

// matchOfferKey matches offers directed at target, yielding the offerer.
func matchOfferKey(key, target string) (string, bool) {
	offerer, found := strings.CutSuffix(key, signalingSeparator+target)
	if !found || offerer == "" {
		return "", false
	}
	return offerer, true
}

// matchAnswerKey matches answers to offers by offerer, yielding the
// answerer.
func matchAnswerKey(key, offerer string) (string, bool) {
	answerer, found := strings.CutPrefix(key, offerer+signalingSeparator)
	if !found || answerer == "" {
		return "", false
	}
	return answerer, true
}

// signalForgetter is implemented by signalers that can discard the
// signaling state of a finished endpoint.
type signalForgetter interface {
	Forget(ctx context.Context, peer string) error
}
