// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// SyncType is the type tag of every sync message.
const SyncType = "instant-mirror-sync"

// ErrMalformedMessage marks a received payload that is not a usable
// sync message. It is logged, never returned to callers.
var ErrMalformedMessage = errors.New("malformed sync message")

// Document is the shared state. Content is the text both sides edit.
// Fields other than content that a peer sends are kept in Extra and
// sent back unchanged.
type Document struct {
	Content string
	Extra   map[string]json.RawMessage
}

// Clone returns a copy that shares nothing mutable with d.
func (d Document) Clone() Document {
	clone := Document{Content: d.Content}
	if d.Extra != nil {
		clone.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for key, value := range d.Extra {
			clone.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return clone
}

// Equal reports whether d and other hold the same content and the same
// extra fields byte for byte.
func (d Document) Equal(other Document) bool {
	if d.Content != other.Content || len(d.Extra) != len(other.Extra) {
		return false
	}
	return maps.EqualFunc(d.Extra, other.Extra, func(a, b json.RawMessage) bool {
		return string(a) == string(b)
	})
}

func (d Document) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(d.Extra)+1)
	for key, value := range d.Extra {
		fields[key] = value
	}
	content, err := json.Marshal(d.Content)
	if err != nil {
		return nil, err
	}
	fields["content"] = content
	return json.Marshal(fields)
}

// UnmarshalJSON accepts any JSON object. A missing content field reads
// as empty; a content field that is not a string is an error.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("document is null")
	}

	var content string
	if raw, ok := fields["content"]; ok {
		if err := json.Unmarshal(raw, &content); err != nil {
			return fmt.Errorf("document content: %w", err)
		}
		delete(fields, "content")
	}

	d.Content = content
	d.Extra = nil
	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

// outgoing is the wire form of a sync message.
type outgoing struct {
	Type  string   `json:"type"`
	State Document `json:"state"`
}

// incoming defers decoding of state so a missing or null state can be
// told apart from an empty document.
type incoming struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state"`
}

// EncodeMessage returns the sync message carrying doc.
func EncodeMessage(doc Document) ([]byte, error) {
	return json.Marshal(outgoing{Type: SyncType, State: doc})
}

// DecodeMessage parses a sync message. Every failure wraps
// ErrMalformedMessage.
func DecodeMessage(data []byte) (Document, error) {
	var message incoming
	if err := json.Unmarshal(data, &message); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if message.Type != SyncType {
		return Document{}, fmt.Errorf("%w: type %q", ErrMalformedMessage, message.Type)
	}
	if len(message.State) == 0 || string(message.State) == "null" {
		return Document{}, fmt.Errorf("%w: no state", ErrMalformedMessage)
	}
	var doc Document
	if err := json.Unmarshal(message.State, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return doc, nil
}
