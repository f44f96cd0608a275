// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeMessage(t *testing.T) {
	data, err := EncodeMessage(Document{Content: "hello"})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if string(data) != `{"type":"instant-mirror-sync","state":{"content":"hello"}}` {
		t.Errorf("EncodeMessage = %s", data)
	}
}

func TestDecodeMessage_PreservesUnknownFields(t *testing.T) {
	payload := `{"type":"instant-mirror-sync","state":{"content":"hi","cursor":{"line":3},"revision":7}}`
	doc, err := DecodeMessage([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if doc.Content != "hi" {
		t.Errorf("Content = %q", doc.Content)
	}
	if string(doc.Extra["cursor"]) != `{"line":3}` || string(doc.Extra["revision"]) != "7" {
		t.Errorf("Extra = %v", doc.Extra)
	}

	reencoded, err := EncodeMessage(doc)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	var wire struct {
		State map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(reencoded, &wire); err != nil {
		t.Fatalf("reencoded message: %v", err)
	}
	if string(wire.State["cursor"]) != `{"line":3}` || string(wire.State["content"]) != `"hi"` {
		t.Errorf("reencoded state = %s", reencoded)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	payloads := map[string]string{
		"not json":         `hello`,
		"array":            `[1,2,3]`,
		"wrong type":       `{"type":"chat","state":{"content":"x"}}`,
		"missing type":     `{"state":{"content":"x"}}`,
		"missing state":    `{"type":"instant-mirror-sync"}`,
		"null state":       `{"type":"instant-mirror-sync","state":null}`,
		"state not object": `{"type":"instant-mirror-sync","state":"x"}`,
		"content not text": `{"type":"instant-mirror-sync","state":{"content":42}}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(payload)); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeMessage(%s) = %v, want ErrMalformedMessage", payload, err)
			}
		})
	}
}

func TestDecodeMessage_EmptyState(t *testing.T) {
	doc, err := DecodeMessage([]byte(`{"type":"instant-mirror-sync","state":{}}`))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if doc.Content != "" || doc.Extra != nil {
		t.Errorf("doc = %+v, want empty", doc)
	}
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	original := Document{Content: "a", Extra: map[string]json.RawMessage{"x": json.RawMessage(`1`)}}
	clone := original.Clone()
	clone.Extra["x"][0] = '2'
	clone.Extra["y"] = json.RawMessage(`3`)

	if string(original.Extra["x"]) != "1" || len(original.Extra) != 1 {
		t.Errorf("original changed: %v", original.Extra)
	}
	if !original.Equal(original.Clone()) || original.Equal(clone) {
		t.Error("Equal disagrees with Clone")
	}
}
