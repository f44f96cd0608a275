// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/mirror/lib/clock"
)

// Compile-time interface check.
var _ Transport = (*WebRTCTransport)(nil)

// dataChannelLabel names the one data channel of every mirror
// PeerConnection. Channels with any other label are closed on arrival.
const dataChannelLabel = "mirror"

// Defaults for WebRTCConfig fields left zero.
const (
	defaultOfferPollInterval  = 500 * time.Millisecond
	defaultAnswerPollInterval = 250 * time.Millisecond
	defaultGatherTimeout      = 15 * time.Second
	defaultAnswerTimeout      = 30 * time.Second
	defaultOpenTimeout        = 15 * time.Second
)

// forgetTimeout bounds the background cleanup of signaling state.
const forgetTimeout = 5 * time.Second

// WebRTCConfig configures a WebRTCTransport. Zero durations take the
// defaults above.
type WebRTCConfig struct {
	// Signaler carries offers and answers. Required.
	Signaler Signaler

	// ICE lists STUN/TURN servers. Empty gathers host candidates only.
	ICE ICEConfig

	// Clock drives every poll interval and timeout. Nil means the real
	// clock.
	Clock clock.Clock

	Logger *slog.Logger

	// OfferPollInterval is how often a listener polls for offers.
	OfferPollInterval time.Duration

	// AnswerPollInterval is how often an endpoint polls for its answer.
	AnswerPollInterval time.Duration

	// GatherTimeout bounds ICE candidate gathering.
	GatherTimeout time.Duration

	// AnswerTimeout bounds the wait for an answer after publishing an
	// offer. Expiry reports ErrPeerUnreachable.
	AnswerTimeout time.Duration

	// OpenTimeout bounds the wait for the data channel to open once
	// descriptions are exchanged. Expiry reports ErrPeerUnreachable.
	OpenTimeout time.Duration
}

// WebRTCTransport opens mirror connections over WebRTC data channels.
//
// Every connection gets its own PeerConnection carrying one ordered,
// reliable data channel labeled "mirror". A host listening under its
// identity answers offers addressed to it; a joiner's endpoint creates
// the PeerConnection and the channel, publishes the offer, and waits
// for the answer. Connection establishment uses vanilla ICE: all
// candidates are gathered before the SDP is published, so signaling
// takes exactly one round-trip.
type WebRTCTransport struct {
	config WebRTCConfig
	clock  clock.Clock
	logger *slog.Logger
}

// NewWebRTCTransport creates a WebRTC transport.
func NewWebRTCTransport(config WebRTCConfig) *WebRTCTransport {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.OfferPollInterval <= 0 {
		config.OfferPollInterval = defaultOfferPollInterval
	}
	if config.AnswerPollInterval <= 0 {
		config.AnswerPollInterval = defaultAnswerPollInterval
	}
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = defaultGatherTimeout
	}
	if config.AnswerTimeout <= 0 {
		config.AnswerTimeout = defaultAnswerTimeout
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaultOpenTimeout
	}
	return &WebRTCTransport{
		config: config,
		clock:  config.Clock,
		logger: config.Logger,
	}
}

// Listen polls the signaler for offers addressed to localPeer and yields
// each as an InboundAttempt. Accepting answers the offer and waits for
// the joiner's data channel to open.
func (wt *WebRTCTransport) Listen(ctx context.Context, localPeer string) (Listener, error) {
	listener := &webrtcListener{
		transport: wt,
		peer:      localPeer,
		attempts:  make(chan InboundAttempt),
		closed:    make(chan struct{}),
	}
	go listener.poll(ctx)

	wt.logger.Info("listening for WebRTC offers", "peer", localPeer)
	return listener, nil
}

// NewEndpoint returns a disposable endpoint for one outbound attempt.
func (wt *WebRTCTransport) NewEndpoint(localPeer string) (Endpoint, error) {
	return &webrtcEndpoint{
		transport: wt,
		id:        EndpointID(localPeer),
		closed:    make(chan struct{}),
	}, nil
}

// newPeerConnection creates a pion PeerConnection with the configured ICE servers.
func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: wt.config.ICE.Servers,
	}

	// Loopback candidates let two peers on one machine, and tests,
	// connect when loopback is the only shared interface.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// gather sets description as the local description and waits for ICE
// gathering to complete, returning the SDP with every candidate.
func (wt *WebRTCTransport) gather(ctx context.Context, pc *webrtc.PeerConnection, description webrtc.SessionDescription, closed <-chan struct{}) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-wt.clock.After(wt.config.GatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", wt.config.GatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-closed:
		return "", ErrClosed
	}
	return pc.LocalDescription().SDP, nil
}

// wrap turns a data channel into a Conn. Inbound messages are queued
// from the moment wrap returns, so nothing sent right after open is
// lost. Closing the Conn closes the whole PeerConnection and discards
// signaling state published under signalPeer.
func (wt *WebRTCTransport) wrap(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, remotePeer, signalPeer string) *messageConn {
	var conn *messageConn
	conn = newMessageConn(remotePeer,
		func(data []byte) error {
			if err := dc.SendText(string(data)); err != nil {
				return fmt.Errorf("sending to %s: %w", remotePeer, err)
			}
			return nil
		},
		func() {
			dc.Close()
			pc.Close()
			wt.forget(signalPeer)
		},
		wt.logger,
	)

	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		conn.deliver(bytes.Clone(message.Data))
	})
	// Teardown closes the PeerConnection, which must not happen on a
	// pion callback goroutine.
	dc.OnClose(func() {
		go conn.shutdown("remote")
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		wt.logger.Debug("peer connection state change",
			"peer", remotePeer,
			"connection", conn.ID(),
			"state", state.String(),
		)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			go conn.shutdown("remote")
		}
	})
	return conn
}

// forget discards signaling state for peer in the background, when the
// signaler supports it.
func (wt *WebRTCTransport) forget(peer string) {
	forgetter, ok := wt.config.Signaler.(signalForgetter)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
		defer cancel()
		if err := forgetter.Forget(ctx, peer); err != nil {
			wt.logger.Debug("discarding signaling state failed", "peer", peer, "error", err)
		}
	}()
}

type webrtcListener struct {
	transport *WebRTCTransport
	peer      string
	attempts  chan InboundAttempt

	closeOnce sync.Once
	closed    chan struct{}
}

func (l *webrtcListener) Attempts() <-chan InboundAttempt { return l.attempts }

func (l *webrtcListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// poll runs until ctx is done or the listener closes, turning new
// offers into attempts.
func (l *webrtcListener) poll(ctx context.Context) {
	defer close(l.attempts)

	wt := l.transport
	ticker := wt.clock.NewTicker(wt.config.OfferPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case <-ticker.C:
		}

		offers, err := wt.config.Signaler.PollOffers(ctx, l.peer)
		if err != nil {
			wt.logger.Warn("polling for SDP offers failed", "error", err)
			continue
		}

		for _, offer := range offers {
			attempt := l.newAttempt(ctx, offer)
			select {
			case l.attempts <- attempt:
			case <-ctx.Done():
				return
			case <-l.closed:
				return
			}
		}
	}
}

func (l *webrtcListener) newAttempt(ctx context.Context, offer SignalMessage) InboundAttempt {
	return &inboundAttempt{
		remote: PeerFromEndpointID(offer.Peer),
		accept: func() (Conn, error) {
			return l.answer(ctx, offer)
		},
		reject: func() error {
			l.transport.logger.Info("rejected WebRTC offer", "peer", offer.Peer)
			return nil
		},
	}
}

// answer creates a PeerConnection in response to an offer, publishes the
// answer, and waits for the offerer's data channel to open.
func (l *webrtcListener) answer(ctx context.Context, offer SignalMessage) (Conn, error) {
	wt := l.transport
	remotePeer := PeerFromEndpointID(offer.Peer)

	pc, err := wt.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	opened := make(chan *messageConn, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			wt.logger.Debug("closing unexpected data channel", "peer", remotePeer, "label", dc.Label())
			dc.Close()
			return
		}
		conn := wt.wrap(pc, dc, remotePeer, offer.Peer)
		dc.OnOpen(func() {
			select {
			case opened <- conn:
			default:
			}
		})
	})

	failed := make(chan struct{})
	var failOnce sync.Once
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			failOnce.Do(func() { close(failed) })
		}
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating SDP answer: %w", err)
	}

	completeSDP, err := wt.gather(ctx, pc, answer, l.closed)
	if err != nil {
		pc.Close()
		return nil, err
	}

	if err := wt.config.Signaler.PublishAnswer(ctx, offer.Peer, l.peer, completeSDP); err != nil {
		pc.Close()
		return nil, fmt.Errorf("publishing SDP answer: %w", err)
	}
	wt.logger.Info("WebRTC offer answered", "peer", remotePeer, "endpoint", offer.Peer)

	select {
	case conn := <-opened:
		wt.logger.Info("WebRTC inbound connection open", "peer", remotePeer, "connection", conn.ID())
		return conn, nil
	case <-failed:
		pc.Close()
		return nil, fmt.Errorf("%w: ICE to %s failed", ErrPeerUnreachable, remotePeer)
	case <-wt.clock.After(wt.config.OpenTimeout):
		pc.Close()
		return nil, fmt.Errorf("%w: data channel from %s did not open within %s", ErrPeerUnreachable, remotePeer, wt.config.OpenTimeout)
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}
}

type webrtcEndpoint struct {
	transport *WebRTCTransport
	id        string

	used      atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	pc   *webrtc.PeerConnection
	conn *messageConn
}

func (e *webrtcEndpoint) ID() string { return e.id }

func (e *webrtcEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		pc, conn := e.pc, e.conn
		e.mu.Unlock()

		switch {
		case conn != nil:
			conn.Close()
		case pc != nil:
			pc.Close()
			e.transport.forget(e.id)
		default:
			e.transport.forget(e.id)
		}
	})
	return nil
}

// Open creates a PeerConnection with the mirror data channel, publishes
// the offer to remotePeer, and waits for the answer and the channel to
// open. Timeouts and ICE failure report ErrPeerUnreachable.
func (e *webrtcEndpoint) Open(ctx context.Context, remotePeer string) (Conn, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrEndpointUsed
	}

	wt := e.transport

	e.mu.Lock()
	select {
	case <-e.closed:
		e.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	pc, err := wt.newPeerConnection()
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	e.pc = pc
	e.mu.Unlock()

	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	conn := wt.wrap(pc, dc, remotePeer, e.id)

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	failed := make(chan struct{})
	var failOnce sync.Once
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			failOnce.Do(func() { close(failed) })
		}
	})

	fail := func(err error) (Conn, error) {
		conn.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("creating SDP offer: %w", err))
	}
	completeSDP, err := wt.gather(ctx, pc, offer, e.closed)
	if err != nil {
		return fail(err)
	}

	if err := wt.config.Signaler.PublishOffer(ctx, e.id, remotePeer, completeSDP); err != nil {
		return fail(fmt.Errorf("publishing SDP offer: %w", err))
	}
	wt.logger.Info("WebRTC offer published", "peer", remotePeer, "endpoint", e.id)

	answerSDP, err := e.waitForAnswer(ctx, remotePeer)
	if err != nil {
		return fail(err)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fail(fmt.Errorf("setting remote description: %w", err))
	}

	select {
	case <-opened:
	case <-failed:
		return fail(fmt.Errorf("%w: ICE to %s failed", ErrPeerUnreachable, remotePeer))
	case <-wt.clock.After(wt.config.OpenTimeout):
		return fail(fmt.Errorf("%w: data channel to %s did not open within %s", ErrPeerUnreachable, remotePeer, wt.config.OpenTimeout))
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-e.closed:
		return fail(ErrClosed)
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	select {
	case <-e.closed:
		return fail(ErrClosed)
	default:
	}

	wt.logger.Info("WebRTC outbound connection open", "peer", remotePeer, "connection", conn.ID())
	return conn, nil
}

// waitForAnswer polls the signaler for the answer from remotePeer.
func (e *webrtcEndpoint) waitForAnswer(ctx context.Context, remotePeer string) (string, error) {
	wt := e.transport
	deadline := wt.clock.After(wt.config.AnswerTimeout)
	ticker := wt.clock.NewTicker(wt.config.AnswerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("%w: no answer from %s within %s", ErrPeerUnreachable, remotePeer, wt.config.AnswerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-e.closed:
			return "", ErrClosed
		case <-ticker.C:
			answers, err := wt.config.Signaler.PollAnswers(ctx, e.id)
			if err != nil {
				wt.logger.Warn("polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer == remotePeer {
					return answer.SDP, nil
				}
			}
		}
	}
}
