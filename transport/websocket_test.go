// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/mirror/lib/testutil"
)

// newWebSocketPair starts a host WebSocketTransport behind an httptest
// server and returns it with a joiner transport dialing that server.
func newWebSocketPair(t *testing.T) (host, joiner *WebSocketTransport) {
	t.Helper()
	host = NewWebSocketTransport("", testLogger())
	server := httptest.NewServer(host.Handler())
	t.Cleanup(server.Close)
	return host, NewWebSocketTransport(server.URL, testLogger())
}

func TestWebSocketTransport_OpenAndExchange(t *testing.T) {
	host, joiner := newWebSocketPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := host.Listen(ctx, "cozy-pine-otter")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	hostConns := acceptNext(t, listener)

	endpoint, err := joiner.NewEndpoint("brave-red-fox")
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer endpoint.Close()

	joinerConn, err := endpoint.Open(ctx, "cozy-pine-otter")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hostConn := testutil.RequireReceive(t, hostConns, 5*time.Second, "host conn")
	if hostConn.RemotePeer() != "brave-red-fox" {
		t.Errorf("host remote = %q", hostConn.RemotePeer())
	}

	atHost := make(chan string, 2)
	hostConn.OnMessage(func(data []byte) { atHost <- string(data) })
	atJoiner := make(chan string, 2)
	joinerConn.OnMessage(func(data []byte) { atJoiner <- string(data) })

	joinerConn.Send([]byte("from joiner"))
	hostConn.Send([]byte("from host"))
	if got := testutil.RequireReceive(t, atHost, 5*time.Second, "at host"); got != "from joiner" {
		t.Errorf("host received %q", got)
	}
	if got := testutil.RequireReceive(t, atJoiner, 5*time.Second, "at joiner"); got != "from host" {
		t.Errorf("joiner received %q", got)
	}

	hostConn.Close()
	testutil.RequireClosed(t, joinerConn.Done(), 5*time.Second, "joiner noticing host close")
}

func TestWebSocketTransport_NobodyListening(t *testing.T) {
	_, joiner := newWebSocketPair(t)
	endpoint, _ := joiner.NewEndpoint("brave-red-fox")
	defer endpoint.Close()

	if _, err := endpoint.Open(context.Background(), "cozy-pine-otter"); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Open = %v, want ErrPeerUnreachable", err)
	}
}

func TestWebSocketTransport_Rejected(t *testing.T) {
	host, joiner := newWebSocketPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, _ := host.Listen(ctx, "cozy-pine-otter")
	defer listener.Close()
	go func() {
		for attempt := range listener.Attempts() {
			attempt.Reject()
		}
	}()

	endpoint, _ := joiner.NewEndpoint("brave-red-fox")
	defer endpoint.Close()
	if _, err := endpoint.Open(ctx, "cozy-pine-otter"); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Open = %v, want ErrPeerUnreachable", err)
	}
}

func TestWebSocketTransport_EndpointNeedsBaseURL(t *testing.T) {
	if _, err := NewWebSocketTransport("", testLogger()).NewEndpoint("brave-red-fox"); err == nil {
		t.Error("NewEndpoint without a base URL succeeded")
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base, want string
		wantErr    bool
	}{
		{base: "http://192.168.1.20:3000", want: "ws://192.168.1.20:3000/api/ws?from=a&to=b"},
		{base: "https://mirror.example.com/app/", want: "wss://mirror.example.com/app/api/ws?from=a&to=b"},
		{base: "ftp://example.com", wantErr: true},
	}
	for _, test := range tests {
		got, err := socketURL(test.base, "a", "b")
		if test.wantErr {
			if err == nil {
				t.Errorf("socketURL(%q) succeeded", test.base)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("socketURL(%q) = %q, %v; want %q", test.base, got, err, test.want)
		}
	}
}
