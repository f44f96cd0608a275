// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rendezvous turns a peer identity into a joinable URL and back.
//
// A host shows [Encode]'s URL as a QR code or link. A joiner feeds
// whatever it scanned or was pasted into [Decode] (or [ParseReference]
// for manual entry), then checks the result with identity.IsValid
// before connecting. Decoding never trusts its input: a payload that
// carries no recognizable identity yields ok=false, not an error.
package rendezvous

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/bureau-foundation/mirror/lib/identity"
)

// JoinPath is the path of the join page on the host's base URL.
const JoinPath = "/join"

// QueryParameter names the identity in a join URL.
const QueryParameter = "peerId"

var (
	// ErrMissing means no join reference was supplied at all.
	ErrMissing = errors.New("no join link or code given")

	// ErrNotUsable means a reference was supplied but carries no valid
	// peer identity.
	ErrNotUsable = errors.New("this link or code is not usable")
)

// peerIDPattern finds the peerId parameter anywhere in a scanned
// payload, including payloads that are not well-formed URLs.
var peerIDPattern = regexp.MustCompile(`[?&]` + QueryParameter + `=([^&\s]+)`)

// Encode returns the join URL for peer on baseURL:
// "{baseURL}/join?peerId={peer}" with the identity percent-encoded.
// A trailing slash on baseURL is dropped.
func Encode(peer, baseURL string) string {
	return strings.TrimRight(baseURL, "/") + JoinPath + "?" + QueryParameter + "=" + url.QueryEscape(peer)
}

// Decode extracts a peer identity from a scanned or pasted payload.
// A peerId query parameter wins; otherwise a bare legacy host id is
// accepted. The result is not validated beyond that: callers must pass
// it through identity.IsValid.
func Decode(payload string) (string, bool) {
	trimmed := strings.TrimSpace(payload)
	if match := peerIDPattern.FindStringSubmatch(trimmed); match != nil {
		decoded, err := url.QueryUnescape(match[1])
		if err != nil || decoded == "" {
			return "", false
		}
		return decoded, true
	}
	if identity.IsLegacy(trimmed) {
		return trimmed, true
	}
	return "", false
}

// ParseReference resolves user input naming a host: a join URL, a
// legacy host id, or a bare identity typed by hand. It returns
// ErrMissing for blank input and ErrNotUsable when no valid identity
// can be recovered.
func ParseReference(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrMissing
	}
	if peer, ok := Decode(trimmed); ok {
		peer = strings.TrimSpace(peer)
		if identity.IsValid(peer) {
			return peer, nil
		}
		return "", ErrNotUsable
	}
	if identity.IsValid(trimmed) {
		return trimmed, nil
	}
	return "", ErrNotUsable
}
