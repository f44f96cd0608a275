// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/mirror/lib/clock"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
	"github.com/bureau-foundation/mirror/lib/testutil"
	"github.com/bureau-foundation/mirror/transport"
)

const waitTimeout = 5 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newManager(t *testing.T, network transport.Transport, peer string, configure ...func(*Config)) *Manager {
	t.Helper()
	config := Config{LocalPeer: peer, Transport: network, Logger: testLogger()}
	for _, fn := range configure {
		fn(&config)
	}
	manager, err := New(config)
	if err != nil {
		t.Fatalf("New(%s): %v", peer, err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newHost(t *testing.T, network transport.Transport, peer string) (*Manager, <-chan Event) {
	t.Helper()
	host := newManager(t, network, peer)
	events, unsubscribe := host.Subscribe()
	t.Cleanup(unsubscribe)
	if err := host.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return host, events
}

func requireEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	event := testutil.RequireReceive(t, events, waitTimeout, "waiting for %s event", kind)
	if event.Kind != kind {
		t.Fatalf("event kind = %s, want %s", event.Kind, kind)
	}
	return event
}

func requireOpened(t *testing.T, pending *Pending) transport.Conn {
	t.Helper()
	select {
	case conn := <-pending.Opened():
		return conn
	case err := <-pending.Failed():
		t.Fatalf("attempt to %s failed: %v", pending.RemotePeer(), err)
	case <-time.After(waitTimeout):
		t.Fatalf("attempt to %s did not resolve", pending.RemotePeer())
	}
	return nil
}

func requireFailed(t *testing.T, pending *Pending) error {
	t.Helper()
	select {
	case conn := <-pending.Opened():
		t.Fatalf("attempt to %s opened %s, want failure", pending.RemotePeer(), conn.ID())
	case err := <-pending.Failed():
		return err
	case <-time.After(waitTimeout):
		t.Fatalf("attempt to %s did not resolve", pending.RemotePeer())
	}
	return nil
}

func TestNew_Validates(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	if _, err := New(Config{LocalPeer: "Not A Slug", Transport: network}); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("New with invalid peer = %v, want ErrInvalidIdentity", err)
	}
	if _, err := New(Config{LocalPeer: "cozy-pine-otter"}); err == nil {
		t.Error("New without a transport succeeded")
	}
}

// TestManager_JoinScenario follows a host advertising cozy-pine-otter
// and a joiner that decodes the link and connects.
func TestManager_JoinScenario(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")

	link := host.JoinURL("http://192.168.1.20:3000")
	if link != "http://192.168.1.20:3000/join?peerId=cozy-pine-otter" {
		t.Fatalf("JoinURL = %q", link)
	}
	remote, ok := rendezvous.Decode(link)
	if !ok || remote != "cozy-pine-otter" {
		t.Fatalf("Decode(%q) = %q, %v", link, remote, ok)
	}

	joiner := newManager(t, network, "brave-red-fox")
	joinerEvents, unsubscribe := joiner.Subscribe()
	defer unsubscribe()

	pending, err := joiner.ConnectTo(context.Background(), remote)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	conn := requireOpened(t, pending)
	if pending.State() != StateOpen {
		t.Errorf("State = %s, want open", pending.State())
	}
	if conn.RemotePeer() != "cozy-pine-otter" {
		t.Errorf("joiner conn remote = %q", conn.RemotePeer())
	}

	added := requireEvent(t, joinerEvents, ConnectionAdded)
	if added.Conn.ID() != conn.ID() || added.Inbound {
		t.Errorf("joiner added event = %+v", added)
	}
	hostAdded := requireEvent(t, hostEvents, ConnectionAdded)
	if hostAdded.Conn.RemotePeer() != "brave-red-fox" || !hostAdded.Inbound {
		t.Errorf("host added event: remote %q inbound %v", hostAdded.Conn.RemotePeer(), hostAdded.Inbound)
	}

	if got := host.Connections(); len(got) != 1 || got[0].ID() != hostAdded.Conn.ID() {
		t.Errorf("host Connections = %v", got)
	}
	if got, ok := joiner.Connection(conn.ID()); !ok || got != conn {
		t.Errorf("joiner Connection(%s) = %v, %v", conn.ID(), got, ok)
	}

	opened, err := pending.Wait(context.Background())
	if err != nil || opened != conn {
		t.Errorf("Wait = %v, %v", opened, err)
	}
}

func TestManager_CloseConnectionReleasesEverything(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	conn := requireOpened(t, pending)
	requireEvent(t, hostEvents, ConnectionAdded)
	if network.LiveEndpoints() != 1 {
		t.Fatalf("LiveEndpoints = %d, want 1", network.LiveEndpoints())
	}

	joiner.CloseConnection(conn)
	if len(joiner.Connections()) != 0 {
		t.Error("joiner still lists the connection after CloseConnection")
	}
	if conn.IsOpen() {
		t.Error("connection still open")
	}
	if network.LiveEndpoints() != 0 {
		t.Errorf("LiveEndpoints = %d after close, want 0", network.LiveEndpoints())
	}

	removed := requireEvent(t, hostEvents, ConnectionRemoved)
	if removed.Conn.RemotePeer() != "brave-red-fox" {
		t.Errorf("host removed %q", removed.Conn.RemotePeer())
	}
	if len(host.Connections()) != 0 {
		t.Error("host still lists the connection")
	}

	// Idempotent.
	joiner.CloseConnection(conn)
}

func TestManager_RemoteCloseRemovesAndReleasesEndpoint(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")
	joinerEvents, unsubscribe := joiner.Subscribe()
	defer unsubscribe()

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	requireOpened(t, pending)
	requireEvent(t, joinerEvents, ConnectionAdded)
	hostConn := requireEvent(t, hostEvents, ConnectionAdded).Conn

	host.CloseConnection(hostConn)

	requireEvent(t, joinerEvents, ConnectionRemoved)
	if len(joiner.Connections()) != 0 {
		t.Error("joiner still lists the connection")
	}
	testutil.Eventually(t, waitTimeout, func() bool { return network.LiveEndpoints() == 0 },
		"endpoint released after remote close")
}

// TestManager_ClosedConnectionNeverListed checks the session set the
// moment a remote close becomes observable, before any removal event.
func TestManager_ClosedConnectionNeverListed(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")

	for range 20 {
		pending, err := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
		if err != nil {
			t.Fatalf("ConnectTo: %v", err)
		}
		conn := requireOpened(t, pending)
		hostConn := requireEvent(t, hostEvents, ConnectionAdded).Conn

		conn.Close()
		testutil.RequireClosed(t, hostConn.Done(), waitTimeout, "host side of %s", hostConn.ID())

		for _, listed := range host.Connections() {
			if !listed.IsOpen() {
				t.Fatalf("host Connections lists closed connection %s", listed.ID())
			}
		}
		if _, ok := host.Connection(hostConn.ID()); ok {
			t.Fatalf("host Connection(%s) found after close", hostConn.ID())
		}
		if _, ok := joiner.Connection(conn.ID()); ok {
			t.Fatalf("joiner Connection(%s) found after close", conn.ID())
		}
		requireEvent(t, hostEvents, ConnectionRemoved)
	}
}

func TestPending_StateClosedAfterConnectionCloses(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	newHost(t, network, "cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	conn := requireOpened(t, pending)
	if pending.State() != StateOpen {
		t.Fatalf("State = %s, want open", pending.State())
	}

	joiner.CloseConnection(conn)
	if pending.State() != StateClosed {
		t.Errorf("State = %s after close, want closed", pending.State())
	}
}

func TestManager_ConnectToInvalidIdentity(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	joiner := newManager(t, network, "brave-red-fox")

	for _, remote := range []string{"", "hello", "Cozy-Pine-Otter", "cozy pine otter"} {
		pending, err := joiner.ConnectTo(context.Background(), remote)
		if !errors.Is(err, ErrInvalidIdentity) || pending != nil {
			t.Errorf("ConnectTo(%q) = %v, %v; want ErrInvalidIdentity", remote, pending, err)
		}
	}
	if network.LiveEndpoints() != 0 {
		t.Errorf("invalid identities allocated %d endpoints", network.LiveEndpoints())
	}
}

func TestManager_Unreachable(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	joiner := newManager(t, network, "brave-red-fox")

	pending, err := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	if err := requireFailed(t, pending); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("failure = %v, want ErrPeerUnreachable", err)
	}
	if pending.State() != StateFailed {
		t.Errorf("State = %s, want failed", pending.State())
	}
	if len(joiner.Connections()) != 0 {
		t.Error("failed attempt left a connection")
	}
	testutil.Eventually(t, waitTimeout, func() bool { return network.LiveEndpoints() == 0 },
		"endpoint released after failure")
}

func TestManager_TransportError(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	joiner := newManager(t, network, "brave-red-fox")
	boom := errors.New("ice exploded")
	network.FailNext("cozy-pine-otter", boom)

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	err := requireFailed(t, pending)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("failure = %T %v, want *TransportError", err, err)
	}
	if transportErr.Peer != "cozy-pine-otter" || !errors.Is(err, boom) {
		t.Errorf("TransportError = %+v", transportErr)
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	network.Block("cozy-pine-otter")
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	joiner := newManager(t, network, "brave-red-fox", func(config *Config) {
		config.Clock = fake
		config.ConnectTimeout = 10 * time.Second
	})

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	fake.Advance(9 * time.Second)
	if pending.State() != StatePending {
		t.Fatalf("State before timeout = %s", pending.State())
	}
	fake.Advance(time.Second)

	if err := requireFailed(t, pending); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("failure = %v, want ErrPeerUnreachable", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool { return network.LiveEndpoints() == 0 },
		"endpoint released after timeout")
}

func TestManager_CallerDeadlineIsUnreachable(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	network.Block("cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	pending, _ := joiner.ConnectTo(ctx, "cozy-pine-otter")
	if err := requireFailed(t, pending); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("failure = %v, want ErrPeerUnreachable", err)
	}
}

func TestManager_CancelReleasesEndpoint(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	network.Block("cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	if network.LiveEndpoints() != 1 {
		t.Fatalf("LiveEndpoints = %d, want 1", network.LiveEndpoints())
	}
	pending.Cancel()

	if err := requireFailed(t, pending); !errors.Is(err, ErrCanceled) {
		t.Errorf("failure = %v, want ErrCanceled", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool { return network.LiveEndpoints() == 0 },
		"endpoint released after cancel")

	// Canceling a resolved attempt is harmless.
	pending.Cancel()
}

func TestManager_RejectsInvalidClaimedIdentity(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")

	endpoint, _ := network.NewEndpoint("Definitely Not Valid")
	defer endpoint.Close()
	_, err := endpoint.Open(context.Background(), "cozy-pine-otter")
	if !errors.Is(err, transport.ErrPeerUnreachable) {
		t.Errorf("Open with invalid identity = %v, want ErrPeerUnreachable", err)
	}
	testutil.RequireNoReceive(t, hostEvents, 50*time.Millisecond, "no added event")
	if len(host.Connections()) != 0 {
		t.Error("host inserted a connection from an invalid identity")
	}
}

func TestManager_TwoJoinersAreIsolated(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, hostEvents := newHost(t, network, "cozy-pine-otter")

	connect := func(peer string) transport.Conn {
		joiner := newManager(t, network, peer)
		pending, err := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
		if err != nil {
			t.Fatalf("ConnectTo from %s: %v", peer, err)
		}
		return requireOpened(t, pending)
	}
	first := connect("brave-red-fox")
	firstAtHost := requireEvent(t, hostEvents, ConnectionAdded).Conn
	second := connect("quiet-blue-owl")
	secondAtHost := requireEvent(t, hostEvents, ConnectionAdded).Conn

	if firstAtHost.ID() == secondAtHost.ID() {
		t.Fatal("both joiners share one host connection")
	}
	if got := host.Connections(); len(got) != 2 || got[0].ID() != firstAtHost.ID() || got[1].ID() != secondAtHost.ID() {
		t.Errorf("host Connections not in insertion order")
	}

	atFirst := make(chan string, 1)
	firstAtHost.OnMessage(func(data []byte) { atFirst <- string(data) })
	atSecond := make(chan string, 1)
	secondAtHost.OnMessage(func(data []byte) { atSecond <- string(data) })

	first.Send([]byte("from fox"))
	if got := testutil.RequireReceive(t, atFirst, waitTimeout, "fox message"); got != "from fox" {
		t.Errorf("first conversation received %q", got)
	}
	testutil.RequireNoReceive(t, atSecond, 50*time.Millisecond, "second conversation stays quiet")

	// One joiner leaving leaves the other connected.
	first.Close()
	removed := requireEvent(t, hostEvents, ConnectionRemoved)
	if removed.Conn.ID() != firstAtHost.ID() {
		t.Errorf("removed %s, want %s", removed.Conn.ID(), firstAtHost.ID())
	}
	if !second.IsOpen() || len(host.Connections()) != 1 {
		t.Error("second joiner affected by the first leaving")
	}
}

func TestManager_Listen(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	host, _ := newHost(t, network, "cozy-pine-otter")
	if err := host.Listen(context.Background()); !errors.Is(err, ErrAlreadyListening) {
		t.Errorf("second Listen = %v, want ErrAlreadyListening", err)
	}
}

func TestManager_Close(t *testing.T) {
	network := transport.NewMemoryNetwork(testLogger())
	newHost(t, network, "cozy-pine-otter")
	joiner := newManager(t, network, "brave-red-fox")
	events, _ := joiner.Subscribe()

	pending, _ := joiner.ConnectTo(context.Background(), "cozy-pine-otter")
	conn := requireOpened(t, pending)
	requireEvent(t, events, ConnectionAdded)

	network.Block("quiet-blue-owl")
	stuck, _ := joiner.ConnectTo(context.Background(), "quiet-blue-owl")

	joiner.Close()

	if err := requireFailed(t, stuck); !errors.Is(err, ErrClosed) {
		t.Errorf("pending attempt failed with %v, want ErrClosed", err)
	}
	if conn.IsOpen() {
		t.Error("connection open after Close")
	}
	requireEvent(t, events, ConnectionRemoved)
	if _, ok := <-events; ok {
		t.Error("subscription not closed after Close")
	}
	testutil.Eventually(t, waitTimeout, func() bool { return network.LiveEndpoints() == 0 },
		"all endpoints released")

	if _, err := joiner.ConnectTo(context.Background(), "cozy-pine-otter"); !errors.Is(err, ErrClosed) {
		t.Errorf("ConnectTo after Close = %v, want ErrClosed", err)
	}
	if err := joiner.Listen(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Listen after Close = %v, want ErrClosed", err)
	}
}
