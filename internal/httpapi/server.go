// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the host's HTTP surface: the local address lookup
// used to build join links, the join page a scanned link opens, the
// WebRTC signaling routes joiners exchange SDP through, and the
// websocket upgrade route.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves the host's routes on a TCP listener. Serve blocks until
// its context is canceled and in-flight requests drain.
type Server struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	shutdownTimeout time.Duration

	// ready is closed once the listener is bound; addr is valid after.
	ready chan struct{}
	addr  net.Addr
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the TCP listen address, e.g. "0.0.0.0:3000". Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10 seconds.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// NewServer returns a Server. Call Serve to start it.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		panic("httpapi.Server: Address is required")
	}
	if config.Handler == nil {
		panic("httpapi.Server: Handler is required")
	}
	if config.Logger == nil {
		panic("httpapi.Server: Logger is required")
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		address:         config.Address,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Port returns the bound TCP port, or 0 before Ready.
func (s *Server) Port() int {
	select {
	case <-s.ready:
	default:
		return 0
	}
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve listens and serves until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// No read or write timeouts: upgraded websockets outlive any sane
	// value. Signaling bodies are bounded per handler instead.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
