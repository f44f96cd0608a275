// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net"
	"testing"
)

func TestSelectLANAddress(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{
			name:       "no candidates",
			candidates: nil,
			want:       "localhost",
		},
		{
			name: "preferred interface wins over earlier candidate",
			candidates: []Candidate{
				{Interface: "tailscale0", Address: net.ParseIP("100.64.0.2")},
				{Interface: "en0", Address: net.ParseIP("192.168.1.5")},
			},
			want: "192.168.1.5",
		},
		{
			name: "first usable when nothing is preferred",
			candidates: []Candidate{
				{Interface: "enp3s0", Address: net.ParseIP("10.0.0.7")},
				{Interface: "tailscale0", Address: net.ParseIP("100.64.0.2")},
			},
			want: "10.0.0.7",
		},
		{
			name: "skipped interfaces and loopback are ignored",
			candidates: []Candidate{
				{Interface: "lo", Address: net.ParseIP("127.0.0.1")},
				{Interface: "docker0", Address: net.ParseIP("172.17.0.1")},
				{Interface: "utun3", Address: net.ParseIP("10.8.0.2")},
				{Interface: "vethab12", Address: net.ParseIP("172.18.0.1")},
			},
			want: "localhost",
		},
		{
			name: "IPv6 addresses are ignored",
			candidates: []Candidate{
				{Interface: "wlan0", Address: net.ParseIP("fe80::1")},
				{Interface: "wlan0", Address: net.ParseIP("192.168.0.20")},
			},
			want: "192.168.0.20",
		},
		{
			name: "interface names compare case-insensitively",
			candidates: []Candidate{
				{Interface: "Docker0", Address: net.ParseIP("172.17.0.1")},
				{Interface: "WLAN0", Address: net.ParseIP("192.168.0.30")},
			},
			want: "192.168.0.30",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := SelectLANAddress(test.candidates); got != test.want {
				t.Errorf("SelectLANAddress() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestNewLocalAddress(t *testing.T) {
	address := NewLocalAddress("192.168.1.5", 3000)
	if address.URL != "http://192.168.1.5:3000" {
		t.Errorf("URL = %q, want %q", address.URL, "http://192.168.1.5:3000")
	}
	if address.IP != "192.168.1.5" || address.Port != 3000 {
		t.Errorf("address = %+v", address)
	}
}

func TestLocalIPv4_NeverEmpty(t *testing.T) {
	if LocalIPv4() == "" {
		t.Fatal("LocalIPv4() returned an empty string")
	}
}
