// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/bureau-foundation/mirror/lib/netutil"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
	"github.com/bureau-foundation/mirror/transport"
)

// LocalAddressFunc reports the address joiners should use to reach
// this host.
type LocalAddressFunc func() netutil.LocalAddress

// forgetter is implemented by signalers that can drop a peer's state.
type forgetter interface {
	Forget(ctx context.Context, peer string) error
}

// RoutesConfig selects what the host serves. Nil fields leave their
// routes unmounted.
type RoutesConfig struct {
	// HostPeer is the identity this host listens as. The join page
	// tells a visitor whether a link points here.
	HostPeer string

	// LocalAddress answers GET /api/local-ip. Required.
	LocalAddress LocalAddressFunc

	// Signaler backs the /api/signal routes.
	Signaler transport.Signaler

	// WebSocket serves transport.WebSocketPath.
	WebSocket http.Handler

	Logger *slog.Logger
}

// NewRouter returns the host's handler with request logging.
func NewRouter(config RoutesConfig) http.Handler {
	routes := &routes{config: config, logger: config.Logger}

	router := mux.NewRouter()
	router.Use(routes.logRequests)

	router.Methods(http.MethodGet).Path(rendezvous.LocalAddressPath).HandlerFunc(routes.localAddress)
	router.Methods(http.MethodGet).Path(rendezvous.JoinPath).HandlerFunc(routes.joinPage)

	if config.Signaler != nil {
		signal := router.PathPrefix(transport.SignalPathPrefix).Subrouter()
		signal.Methods(http.MethodPut).Path("/offers/{target}/{offerer}").HandlerFunc(routes.putOffer)
		signal.Methods(http.MethodPut).Path("/answers/{offerer}/{answerer}").HandlerFunc(routes.putAnswer)
		signal.Methods(http.MethodGet).Path("/offers/{target}").HandlerFunc(routes.getOffers)
		signal.Methods(http.MethodGet).Path("/answers/{offerer}").HandlerFunc(routes.getAnswers)
		signal.Methods(http.MethodDelete).Path("/peers/{peer}").HandlerFunc(routes.forgetPeer)
	}
	if config.WebSocket != nil {
		router.Path(transport.WebSocketPath).Handler(config.WebSocket)
	}
	return router
}

type routes struct {
	config RoutesConfig
	logger *slog.Logger
}

func (r *routes) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		metrics := httpsnoop.CaptureMetrics(handler, writer, request)
		// Joiners poll signaling several times a second.
		level := slog.LevelInfo
		if metrics.Code < 400 && request.Method == http.MethodGet {
			level = slog.LevelDebug
		}
		r.logger.Log(request.Context(), level, "handled",
			"method", request.Method,
			"path", request.URL.Path,
			"status", metrics.Code,
			"duration", metrics.Duration,
			"bytes", metrics.Written,
		)
	})
}

func (r *routes) localAddress(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, r.config.LocalAddress())
}

func (r *routes) putOffer(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)
	sdp, ok := readSignalBody(writer, request)
	if !ok {
		return
	}
	if err := r.config.Signaler.PublishOffer(request.Context(), vars["offerer"], vars["target"], sdp); err != nil {
		r.signalError(writer, "publishing offer", err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (r *routes) putAnswer(writer http.ResponseWriter, request *http.Request) {
	vars := mux.Vars(request)
	sdp, ok := readSignalBody(writer, request)
	if !ok {
		return
	}
	if err := r.config.Signaler.PublishAnswer(request.Context(), vars["offerer"], vars["answerer"], sdp); err != nil {
		r.signalError(writer, "publishing answer", err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (r *routes) getOffers(writer http.ResponseWriter, request *http.Request) {
	offers, err := r.config.Signaler.PollOffers(request.Context(), mux.Vars(request)["target"])
	if err != nil {
		r.signalError(writer, "polling offers", err)
		return
	}
	writeJSON(writer, http.StatusOK, nonNil(offers))
}

func (r *routes) getAnswers(writer http.ResponseWriter, request *http.Request) {
	answers, err := r.config.Signaler.PollAnswers(request.Context(), mux.Vars(request)["offerer"])
	if err != nil {
		r.signalError(writer, "polling answers", err)
		return
	}
	writeJSON(writer, http.StatusOK, nonNil(answers))
}

func (r *routes) forgetPeer(writer http.ResponseWriter, request *http.Request) {
	if signaler, ok := r.config.Signaler.(forgetter); ok {
		if err := signaler.Forget(request.Context(), mux.Vars(request)["peer"]); err != nil {
			r.signalError(writer, "forgetting peer", err)
			return
		}
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (r *routes) signalError(writer http.ResponseWriter, action string, err error) {
	r.logger.Warn("signaling request failed", "action", action, "error", err)
	http.Error(writer, action+" failed", http.StatusBadGateway)
}

// readSignalBody decodes a SignalBody, answering 400 or 413 itself when
// it cannot.
func readSignalBody(writer http.ResponseWriter, request *http.Request) (string, bool) {
	var body transport.SignalBody
	request.Body = http.MaxBytesReader(writer, request.Body, netutil.MaxResponseSize)
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(writer, "signal body too large", http.StatusRequestEntityTooLarge)
			return "", false
		}
		http.Error(writer, "invalid signal body", http.StatusBadRequest)
		return "", false
	}
	if body.SDP == "" {
		http.Error(writer, "sdp is required", http.StatusBadRequest)
		return "", false
	}
	return body.SDP, true
}

func nonNil(messages []transport.SignalMessage) []transport.SignalMessage {
	if messages == nil {
		return []transport.SignalMessage{}
	}
	return messages
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}
