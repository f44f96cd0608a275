// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/lib/config"
	"github.com/bureau-foundation/mirror/lib/identity"
	"github.com/bureau-foundation/mirror/transport"
)

// signalClientTimeout bounds each request to the host's signaling
// routes.
const signalClientTimeout = 10 * time.Second

func noClose() error { return nil }

// addConfigFlag registers --config on flagSet.
func addConfigFlag(flagSet *pflag.FlagSet, path *string) {
	flagSet.StringVarP(path, "config", "c", "", "configuration file (YAML or JSONC); defaults to $"+config.EnvironmentVariable)
}

// loadConfig reads path, or the file named by MIRROR_CONFIG when path
// is empty, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openProvider returns the identity provider for this device. A store
// that cannot be opened degrades to a session-only identity.
func openProvider(cfg *config.Config, logger *slog.Logger) (*identity.Provider, func() error) {
	if cfg.Identity.Store == "" {
		return identity.NewProvider(identity.NewMemoryStore(), logger), noClose
	}
	if err := cfg.EnsureStateDir(); err != nil {
		logger.Warn("identity store unavailable, using a session-only identity",
			"path", cfg.Identity.Store,
			"error", fmt.Errorf("%w: %w", identity.ErrStorageUnavailable, err))
		return identity.NewProvider(identity.NewMemoryStore(), logger), noClose
	}
	store, err := identity.OpenBoltStore(cfg.Identity.Store)
	if err != nil {
		logger.Warn("identity store unavailable, using a session-only identity",
			"path", cfg.Identity.Store,
			"error", fmt.Errorf("%w: %w", identity.ErrStorageUnavailable, err))
		return identity.NewProvider(identity.NewMemoryStore(), logger), noClose
	}
	return identity.NewProvider(store, logger), store.Close
}

// hostIdentity picks the identity a host listens as: a fresh legacy id
// when ephemeral hosting is configured, the device identity otherwise.
func hostIdentity(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Identity.EphemeralHost {
		peer := identity.NewLegacy()
		logger.Info("using ephemeral host id", "peer", peer)
		return peer
	}
	provider, closeStore := openProvider(cfg, logger)
	defer closeStore()
	return provider.Identity()
}

// hostStack is the transport side of a running host.
type hostStack struct {
	transport transport.Transport

	// signaler backs the host's /api/signal routes. Nil for the
	// websocket transport.
	signaler transport.Signaler

	// websocket is the upgrade handler. Nil for WebRTC.
	websocket http.Handler

	close func() error
}

func newHostStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*hostStack, error) {
	if cfg.Transport.Kind == config.TransportWebSocket {
		ws := transport.NewWebSocketTransport("", logger)
		return &hostStack{transport: ws, websocket: ws.Handler(), close: noClose}, nil
	}

	stack := &hostStack{close: noClose}
	switch cfg.Signaling.Kind {
	case config.SignalingRedis:
		signaler, err := newRedisSignaler(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		stack.signaler = signaler
		stack.close = signaler.Close
	default:
		// http and memory: the host keeps offers in process and serves
		// them to joiners.
		stack.signaler = transport.NewMemorySignaler()
	}

	stack.transport = transport.NewWebRTCTransport(transport.WebRTCConfig{
		Signaler: stack.signaler,
		ICE:      iceConfig(cfg),
		Logger:   logger,
	})
	return stack, nil
}

// newJoinTransport builds the transport a joiner dials the host with.
// baseURL is the host's HTTP origin; it is required for http signaling
// and the websocket transport.
func newJoinTransport(ctx context.Context, cfg *config.Config, baseURL string, logger *slog.Logger) (transport.Transport, func() error, error) {
	if cfg.Transport.Kind == config.TransportWebSocket {
		if baseURL == "" {
			return nil, nil, errMissingBaseURL
		}
		return transport.NewWebSocketTransport(baseURL, logger), noClose, nil
	}

	var signaler transport.Signaler
	closeSignaler := noClose
	switch cfg.Signaling.Kind {
	case config.SignalingRedis:
		redisSignaler, err := newRedisSignaler(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		signaler = redisSignaler
		closeSignaler = redisSignaler.Close
	case config.SignalingMemory:
		return nil, nil, errors.New("memory signaling only works inside one process; use http or redis to join")
	default:
		if baseURL == "" {
			return nil, nil, errMissingBaseURL
		}
		signaler = transport.NewHTTPSignaler(baseURL, &http.Client{Timeout: signalClientTimeout})
	}

	return transport.NewWebRTCTransport(transport.WebRTCConfig{
		Signaler: signaler,
		ICE:      iceConfig(cfg),
		Logger:   logger,
	}), closeSignaler, nil
}

var errMissingBaseURL = errors.New("no host address: pass a join link, --url, or set signaling.url")

func newRedisSignaler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transport.RedisSignaler, error) {
	ttl, err := cfg.RedisTTLDuration()
	if err != nil {
		return nil, err
	}
	return transport.NewRedisSignaler(ctx, redisURL(cfg.Signaling.RedisAddress), ttl, logger)
}

// redisURL accepts either host:port or a full redis:// URL.
func redisURL(address string) string {
	if strings.Contains(address, "://") {
		return address
	}
	return "redis://" + address
}

func iceConfig(cfg *config.Config) transport.ICEConfig {
	if len(cfg.Transport.ICEServers) == 0 {
		return transport.DefaultICEConfig()
	}
	return transport.ICEConfigFromURLs(cfg.Transport.ICEServers)
}

// originOf returns scheme://host of a join link, or "" when reference
// is not an http(s) URL.
func originOf(reference string) string {
	parsed, err := url.Parse(strings.TrimSpace(reference))
	if err != nil || parsed.Host == "" {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
