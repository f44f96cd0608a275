// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/mirror/lib/identity"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		peer, base, want string
	}{
		{"cozy-pine-otter", "http://192.168.1.5:3000", "http://192.168.1.5:3000/join?peerId=cozy-pine-otter"},
		{"cozy-pine-otter", "https://mirror.example/app/", "https://mirror.example/app/join?peerId=cozy-pine-otter"},
		{"a b&c", "http://h", "http://h/join?peerId=a+b%26c"},
	}
	for _, test := range tests {
		if got := Encode(test.peer, test.base); got != test.want {
			t.Errorf("Encode(%q, %q) = %q, want %q", test.peer, test.base, got, test.want)
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, peer := range []string{"cozy-pine-otter", "host-abc123", identity.GenerateSlug(), identity.NewLegacy()} {
		got, ok := Decode(Encode(peer, "http://10.0.0.2:3000"))
		if !ok || got != peer {
			t.Errorf("Decode(Encode(%q)) = %q, %v", peer, got, ok)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantOK  bool
	}{
		{"join url", "http://10.0.0.2:3000/join?peerId=cozy-pine-otter", "cozy-pine-otter", true},
		{"padded url", "  http://h/join?peerId=cozy-pine-otter\n", "cozy-pine-otter", true},
		{"second parameter", "http://h/join?x=1&peerId=brave-red-fox&y=2", "brave-red-fox", true},
		{"percent encoded", "http://h/join?peerId=host%2Dabc", "host-abc", true},
		{"bare legacy", "host-abc123", "host-abc123", true},
		{"bare legacy padded", "  HOST-ABC  ", "HOST-ABC", true},
		{"bare slug is not a link", "cozy-pine-otter", "", false},
		{"garbage", "hello world", "", false},
		{"empty", "", "", false},
		{"empty parameter", "http://h/join?peerId=", "", false},
		{"bad escape", "http://h/join?peerId=%zz", "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := Decode(test.payload)
			if got != test.want || ok != test.wantOK {
				t.Errorf("Decode(%q) = %q, %v; want %q, %v", test.payload, got, ok, test.want, test.wantOK)
			}
		})
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr error
	}{
		{"http://h/join?peerId=cozy-pine-otter", "cozy-pine-otter", nil},
		{"cozy-pine-otter", "cozy-pine-otter", nil},
		{" host-abc ", "host-abc", nil},
		{"", "", ErrMissing},
		{"   ", "", ErrMissing},
		{"http://h/join?peerId=Not%20Valid", "", ErrNotUsable},
		{"two-words", "", ErrNotUsable},
	}
	for _, test := range tests {
		got, err := ParseReference(test.input)
		if got != test.want || !errors.Is(err, test.wantErr) || (test.wantErr == nil && err != nil) {
			t.Errorf("ParseReference(%q) = %q, %v; want %q, %v", test.input, got, err, test.want, test.wantErr)
		}
	}
}
