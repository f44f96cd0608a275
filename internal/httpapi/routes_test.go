// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/mirror/lib/netutil"
	"github.com/bureau-foundation/mirror/lib/testutil"
	"github.com/bureau-foundation/mirror/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func staticAddress() netutil.LocalAddress {
	return netutil.NewLocalAddress("192.168.1.20", 3000)
}

func newTestServer(t *testing.T, config RoutesConfig) *httptest.Server {
	t.Helper()
	if config.LocalAddress == nil {
		config.LocalAddress = staticAddress
	}
	config.Logger = testLogger()
	server := httptest.NewServer(NewRouter(config))
	t.Cleanup(server.Close)
	return server
}

func TestLocalAddressRoute(t *testing.T) {
	server := newTestServer(t, RoutesConfig{HostPeer: "cozy-pine-otter"})

	response, err := http.Get(server.URL + "/api/local-ip")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["ip"] != "192.168.1.20" || body["port"] != float64(3000) || body["url"] != "http://192.168.1.20:3000" {
		t.Errorf("body = %v", body)
	}
}

func TestJoinPage(t *testing.T) {
	server := newTestServer(t, RoutesConfig{HostPeer: "cozy-pine-otter"})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantState  JoinState
		wantText   string
	}{
		{"missing", "", http.StatusBadRequest, JoinMissing, "scan the QR code"},
		{"empty", "?peerId=", http.StatusBadRequest, JoinMissing, "scan the QR code"},
		{"unusable", "?peerId=not%20an%20id", http.StatusBadRequest, JoinUnusable, "not usable"},
		{"this host", "?peerId=cozy-pine-otter", http.StatusOK, JoinReady, "is running here"},
		{"other host", "?peerId=brave-red-fox", http.StatusOK, JoinReady, "http://192.168.1.20:3000/join?peerId=brave-red-fox"},
		{"legacy", "?peerId=host-abc123", http.StatusOK, JoinReady, "host-abc123"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response, err := http.Get(server.URL + "/join" + test.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer response.Body.Close()
			page, _ := io.ReadAll(response.Body)

			if response.StatusCode != test.wantStatus {
				t.Errorf("status = %d, want %d", response.StatusCode, test.wantStatus)
			}
			if got := JoinState(response.Header.Get("X-Join-State")); got != test.wantState {
				t.Errorf("state = %q, want %q", got, test.wantState)
			}
			if !strings.Contains(string(page), test.wantText) {
				t.Errorf("page does not contain %q:\n%s", test.wantText, page)
			}
		})
	}
}

func TestSignalRoutes_HTTPSignalerEndToEnd(t *testing.T) {
	backing := transport.NewMemorySignaler()
	server := newTestServer(t, RoutesConfig{HostPeer: "cozy-pine-otter", Signaler: backing})
	client := transport.NewHTTPSignaler(server.URL, server.Client())
	ctx := context.Background()

	if err := client.PublishOffer(ctx, "brave-red-fox~x1", "cozy-pine-otter", "v=0 offer"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	// The host polls its own signaler directly.
	offers, _ := backing.PollOffers(ctx, "cozy-pine-otter")
	if len(offers) != 1 || offers[0].Peer != "brave-red-fox~x1" || offers[0].SDP != "v=0 offer" {
		t.Fatalf("offers at host = %+v", offers)
	}

	backing.PublishAnswer(ctx, "brave-red-fox~x1", "cozy-pine-otter", "v=0 answer")
	answers, err := client.PollAnswers(ctx, "brave-red-fox~x1")
	if err != nil {
		t.Fatalf("PollAnswers: %v", err)
	}
	if len(answers) != 1 || answers[0].SDP != "v=0 answer" {
		t.Fatalf("answers = %+v", answers)
	}

	empty, err := client.PollOffers(ctx, "nobody-home-here")
	if err != nil || len(empty) != 0 {
		t.Errorf("PollOffers for nobody = %+v, %v", empty, err)
	}

	if err := client.Forget(ctx, "brave-red-fox~x1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	backing.PublishAnswer(ctx, "someone-else-here~y", "cozy-pine-otter", "unrelated")
	if answers, _ := backing.PollAnswers(ctx, "brave-red-fox~x1"); len(answers) != 0 {
		t.Errorf("answers survived Forget: %+v", answers)
	}
}

func TestSignalRoutes_RejectBadBodies(t *testing.T) {
	server := newTestServer(t, RoutesConfig{Signaler: transport.NewMemorySignaler()})
	target := server.URL + "/api/signal/offers/cozy-pine-otter/brave-red-fox~x1"

	put := func(body string) int {
		request, _ := http.NewRequest(http.MethodPut, target, strings.NewReader(body))
		response, err := http.DefaultClient.Do(request)
		if err != nil {
			t.Fatalf("PUT: %v", err)
		}
		response.Body.Close()
		return response.StatusCode
	}

	if status := put(`not json`); status != http.StatusBadRequest {
		t.Errorf("invalid JSON: status %d", status)
	}
	if status := put(`{"sdp":""}`); status != http.StatusBadRequest {
		t.Errorf("empty sdp: status %d", status)
	}
}

func TestSignalRoutes_UnmountedWithoutSignaler(t *testing.T) {
	server := newTestServer(t, RoutesConfig{})
	response, err := http.Get(server.URL + "/api/signal/offers/cozy-pine-otter")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", response.StatusCode)
	}
}

// TestWebSocketRoute checks that upgrades pass through the router and
// its logging middleware.
func TestWebSocketRoute(t *testing.T) {
	host := transport.NewWebSocketTransport("", testLogger())
	server := newTestServer(t, RoutesConfig{WebSocket: host.Handler()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener, err := host.Listen(ctx, "cozy-pine-otter")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	accepted := make(chan transport.Conn, 1)
	go func() {
		attempt := <-listener.Attempts()
		if conn, err := attempt.Accept(); err == nil {
			accepted <- conn
		}
	}()

	endpoint, _ := transport.NewWebSocketTransport(server.URL, testLogger()).NewEndpoint("brave-red-fox")
	defer endpoint.Close()
	conn, err := endpoint.Open(ctx, "cozy-pine-otter")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hostConn := testutil.RequireReceive(t, accepted, 5*time.Second, "host accept")

	received := make(chan string, 1)
	hostConn.OnMessage(func(data []byte) { received <- string(data) })
	conn.Send([]byte("hello"))
	if got := testutil.RequireReceive(t, received, 5*time.Second, "message through router"); got != "hello" {
		t.Errorf("received %q", got)
	}
}
