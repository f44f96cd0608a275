// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/mirror/lib/netutil"
)

// Compile-time interface check.
var _ Signaler = (*HTTPSignaler)(nil)

// SignalPathPrefix roots the host's signaling routes:
//
//	PUT    /api/signal/offers/{target}/{offerer}    body: {"sdp": "..."}
//	PUT    /api/signal/answers/{offerer}/{answerer} body: {"sdp": "..."}
//	GET    /api/signal/offers/{target}              -> []SignalMessage
//	GET    /api/signal/answers/{offerer}            -> []SignalMessage
//	DELETE /api/signal/peers/{peer}
const SignalPathPrefix = "/api/signal"

// SignalBody is the request body of the PUT routes.
type SignalBody struct {
	SDP string `json:"sdp"`
}

// HTTPSignaler is a Signaler client for a host's signaling routes. A
// joiner uses it to exchange SDP through the host it is dialing, which
// needs nothing but the host's base URL from the join link.
type HTTPSignaler struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSignaler returns a client for the host serving at baseURL.
func NewHTTPSignaler(baseURL string, client *http.Client) *HTTPSignaler {
	return &HTTPSignaler{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPSignaler) PublishOffer(ctx context.Context, offerer, target, sdp string) error {
	if err := s.put(ctx, s.path("offers", target, offerer), sdp); err != nil {
		return fmt.Errorf("publishing offer to %s: %w", target, err)
	}
	return nil
}

func (s *HTTPSignaler) PublishAnswer(ctx context.Context, offerer, answerer, sdp string) error {
	if err := s.put(ctx, s.path("answers", offerer, answerer), sdp); err != nil {
		return fmt.Errorf("publishing answer to %s: %w", offerer, err)
	}
	return nil
}

func (s *HTTPSignaler) PollOffers(ctx context.Context, target string) ([]SignalMessage, error) {
	messages, err := s.get(ctx, s.path("offers", target))
	if err != nil {
		return nil, fmt.Errorf("polling offers for %s: %w", target, err)
	}
	return messages, nil
}

func (s *HTTPSignaler) PollAnswers(ctx context.Context, offerer string) ([]SignalMessage, error) {
	messages, err := s.get(ctx, s.path("answers", offerer))
	if err != nil {
		return nil, fmt.Errorf("polling answers for %s: %w", offerer, err)
	}
	return messages, nil
}

// Forget asks the host to drop signaling state involving peer.
func (s *HTTPSignaler) Forget(ctx context.Context, peer string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.path("peers", peer), nil)
	if err != nil {
		return err
	}
	return s.do(request, nil)
}

func (s *HTTPSignaler) path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return s.baseURL + SignalPathPrefix + "/" + strings.Join(escaped, "/")
}

func (s *HTTPSignaler) put(ctx context.Context, target, sdp string) error {
	body, err := json.Marshal(SignalBody{SDP: sdp})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return s.do(request, nil)
}

func (s *HTTPSignaler) get(ctx context.Context, target string) ([]SignalMessage, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	var messages []SignalMessage
	if err := s.do(request, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *HTTPSignaler) do(request *http.Request, result any) error {
	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", response.StatusCode, strings.TrimSpace(netutil.ErrorBody(response.Body)))
	}
	if result == nil {
		return nil
	}
	return netutil.DecodeResponse(response.Body, result)
}
