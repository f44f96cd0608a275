// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/mirror/lib/netutil"
)

// Compile-time interface check.
var _ Transport = (*WebSocketTransport)(nil)

// WebSocketPath is the upgrade route a host serves for the websocket
// transport. Endpoints dial it with ?from=<endpoint id>&to=<host peer>.
const WebSocketPath = "/api/ws"

// closeWriteTimeout bounds the close frame written on local close.
const closeWriteTimeout = time.Second

// WebSocketTransport carries mirror connections over WebSockets to the
// host's HTTP server. It needs no signaling and no NAT traversal, so it
// suits hosts and joiners on one LAN, or joiners that can reach the
// host's URL directly.
//
// The host side mounts Handler at WebSocketPath and calls Listen; the
// joiner side creates endpoints that dial the base URL they were given.
// An upgrade naming a peer nobody is listening as fails with 404, which
// the dialing endpoint reports as ErrPeerUnreachable.
type WebSocketTransport struct {
	baseURL  string
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[string]*websocketListener
}

// NewWebSocketTransport returns a transport whose endpoints dial the
// host at baseURL (http or https). Hosts that only listen may pass an
// empty baseURL.
func NewWebSocketTransport(baseURL string, logger *slog.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  websocket.DefaultDialer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Joiners load the host's page from a LAN address the host
			// cannot predict; identity checks happen above transport.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:    logger,
		listeners: make(map[string]*websocketListener),
	}
}

// Listen registers localPeer with the upgrade handler.
func (t *WebSocketTransport) Listen(ctx context.Context, localPeer string) (Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.listeners[localPeer]; exists {
		return nil, fmt.Errorf("peer %s is already listening", localPeer)
	}

	listener := &websocketListener{}
	listener.attemptQueue = newAttemptQueue(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.listeners[localPeer] == listener {
			delete(t.listeners, localPeer)
		}
	})
	t.listeners[localPeer] = listener

	t.logger.Info("listening for websocket connections", "peer", localPeer)
	return listener, nil
}

// NewEndpoint returns an endpoint dialing this transport's base URL.
func (t *WebSocketTransport) NewEndpoint(localPeer string) (Endpoint, error) {
	if t.baseURL == "" {
		return nil, errors.New("websocket transport has no base URL to dial")
	}
	return &websocketEndpoint{
		transport: t,
		id:        EndpointID(localPeer),
		closed:    make(chan struct{}),
	}, nil
}

type websocketListener struct {
	*attemptQueue
}

// upgradeDecision is what the handler goroutine waits for: accept, with
// a channel to return the Conn on, or reject.
type upgradeDecision struct {
	accept bool
	conn   chan *messageConn
	err    chan error
}

// Handler returns the HTTP handler for WebSocketPath.
func (t *WebSocketTransport) Handler() http.Handler {
	return http.HandlerFunc(t.serveUpgrade)
}

func (t *WebSocketTransport) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}

	t.mu.Lock()
	listener := t.listeners[to]
	t.mu.Unlock()
	if listener == nil {
		http.Error(w, "no peer "+to+" here", http.StatusNotFound)
		return
	}

	decisions := make(chan upgradeDecision, 1)
	remotePeer := PeerFromEndpointID(from)
	attempt := &inboundAttempt{
		remote: remotePeer,
		accept: func() (Conn, error) {
			decision := upgradeDecision{accept: true, conn: make(chan *messageConn, 1), err: make(chan error, 1)}
			decisions <- decision
			select {
			case conn := <-decision.conn:
				return conn, nil
			case err := <-decision.err:
				return nil, err
			}
		},
		reject: func() error {
			decisions <- upgradeDecision{}
			return nil
		},
	}

	if err := listener.offer(r.Context(), attempt); err != nil {
		http.Error(w, "no peer "+to+" here", http.StatusNotFound)
		return
	}

	var decision upgradeDecision
	select {
	case decision = <-decisions:
	case <-r.Context().Done():
		// The attempt stays decidable; Accept finds nobody waiting.
		go func() {
			if late := <-decisions; late.accept {
				late.err <- fmt.Errorf("%w: %s disconnected before accept", ErrPeerUnreachable, remotePeer)
			}
		}()
		return
	}

	if !decision.accept {
		http.Error(w, "connection rejected", http.StatusForbidden)
		return
	}

	socket, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		decision.err <- fmt.Errorf("upgrading connection from %s: %w", remotePeer, err)
		return
	}
	decision.conn <- t.wrap(socket, remotePeer)
}

// wrap turns a socket into a Conn and starts its read loop.
func (t *WebSocketTransport) wrap(socket *websocket.Conn, remotePeer string) *messageConn {
	var writeMu sync.Mutex
	conn := newMessageConn(remotePeer,
		func(data []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("sending to %s: %w", remotePeer, err)
			}
			return nil
		},
		func() {
			writeMu.Lock()
			socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWriteTimeout))
			writeMu.Unlock()
			socket.Close()
		},
		t.logger,
	)

	go func() {
		for {
			_, data, err := socket.ReadMessage()
			if err != nil {
				if !isExpectedSocketClose(err) {
					t.logger.Debug("websocket read failed", "peer", remotePeer, "error", err)
				}
				conn.shutdown("remote")
				return
			}
			conn.deliver(data)
		}
	}()
	return conn
}

func isExpectedSocketClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		netutil.IsExpectedCloseError(err)
}

type websocketEndpoint struct {
	transport *WebSocketTransport
	id        string

	used      atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	conn *messageConn
}

func (e *websocketEndpoint) ID() string { return e.id }

func (e *websocketEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}

// Open dials the host's upgrade route. A 404 or 403 from the host
// reports ErrPeerUnreachable.
func (e *websocketEndpoint) Open(ctx context.Context, remotePeer string) (Conn, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrEndpointUsed
	}

	target, err := socketURL(e.transport.baseURL, e.id, remotePeer)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.closed:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	socket, response, err := e.transport.dialer.DialContext(dialCtx, target, nil)
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	if err != nil {
		select {
		case <-e.closed:
			return nil, ErrClosed
		default:
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if response != nil && (response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s answered HTTP %d", ErrPeerUnreachable, remotePeer, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}

	conn := e.transport.wrap(socket, remotePeer)

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	select {
	case <-e.closed:
		conn.Close()
		return nil, ErrClosed
	default:
	}
	return conn, nil
}

// socketURL converts an http(s) base URL to the ws(s) upgrade URL.
func socketURL(baseURL, from, to string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("base URL %q: unsupported scheme %q", baseURL, parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + WebSocketPath
	parsed.RawQuery = url.Values{"from": {from}, "to": {to}}.Encode()
	return parsed.String(), nil
}
