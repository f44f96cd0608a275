// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
	"github.com/bureau-foundation/mirror/internal/httpapi"
	"github.com/bureau-foundation/mirror/lib/lan"
	"github.com/bureau-foundation/mirror/lib/netutil"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
	"github.com/bureau-foundation/mirror/mirror"
	"github.com/bureau-foundation/mirror/session"
)

// baseURLLookupTimeout bounds the request a host makes to itself to
// learn its LAN address.
const baseURLLookupTimeout = 2 * time.Second

type hostOptions struct {
	configPath string
	listen     string
	baseURL    string
	text       string
	ephemeral  bool
	plain      bool
}

func hostCommand() *cli.Command {
	var options hostOptions
	return &cli.Command{
		Name:    "host",
		Summary: "Host a document and show its join link",
		Description: `Host a document and wait for another device to join.

The host serves a small HTTP API on the LAN (join page, address lookup,
and WebRTC signaling or WebSocket upgrades), prints a join link with a
QR code, and mirrors the document with everyone who connects. Edits
made here go to every connected device; each device's own edits are
shown as they arrive but are not passed on to the others.`,
		Usage: "mirror host [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("host", pflag.ContinueOnError)
			addConfigFlag(flagSet, &options.configPath)
			flagSet.StringVar(&options.listen, "listen", "", "HTTP listen address (overrides http.listen)")
			flagSet.StringVar(&options.baseURL, "base-url", "", "base of the join link (overrides http.base_url)")
			flagSet.StringVar(&options.text, "text", "", "initial document content")
			flagSet.BoolVar(&options.ephemeral, "ephemeral", false, "host under a fresh host-<id> instead of the device identity")
			flagSet.BoolVar(&options.plain, "plain", false, "line mode even on a terminal")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Host on port 8080 with a starting text",
				Command:     "mirror host --listen :8080 --text 'shopping list'",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runHost(options)
		},
	}
}

func runHost(options hostOptions) error {
	cfg, err := loadConfig(options.configPath)
	if err != nil {
		return err
	}
	if options.listen != "" {
		cfg.HTTP.Listen = options.listen
	}
	if options.baseURL != "" {
		cfg.HTTP.BaseURL = options.baseURL
	}
	if options.ephemeral {
		cfg.Identity.EphemeralHost = true
	}

	screen := !options.plain && cli.IsTerminal(os.Stdin) && cli.IsTerminal(os.Stdout)
	logger, closeLog, err := cli.NewLogger(cfg.Logging, cli.LoggerOptions{Screen: screen})
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("command", "host")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	peer := hostIdentity(cfg, logger)

	stack, err := newHostStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.close()

	connectTimeout, err := cfg.ConnectTimeoutDuration()
	if err != nil {
		return err
	}
	manager, err := session.New(session.Config{
		LocalPeer:      peer,
		Transport:      stack.transport,
		Logger:         logger,
		ConnectTimeout: connectTimeout,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	var server *httpapi.Server
	router := httpapi.NewRouter(httpapi.RoutesConfig{
		HostPeer: peer,
		LocalAddress: func() netutil.LocalAddress {
			return netutil.NewLocalAddress(netutil.LocalIPv4(), server.Port())
		},
		Signaler:  stack.signaler,
		WebSocket: stack.websocket,
		Logger:    logger,
	})
	server = httpapi.NewServer(httpapi.ServerConfig{
		Address: cfg.HTTP.Listen,
		Handler: router,
		Logger:  logger,
	})

	serveCtx, stopServing := context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(serveCtx) }()

	select {
	case <-server.Ready():
	case err := <-serveErr:
		stopServing()
		return fmt.Errorf("starting HTTP server: %w", err)
	}
	defer func() {
		stopServing()
		if err := <-serveErr; err != nil {
			logger.Error("HTTP server stopped with error", "error", err)
		}
	}()

	baseURL := cfg.HTTP.BaseURL
	if baseURL == "" {
		origin := fmt.Sprintf("http://localhost:%d", server.Port())
		baseURL = rendezvous.ResolveBaseURL(ctx, &http.Client{Timeout: baseURLLookupTimeout}, origin)
	}
	joinURL := manager.JoinURL(baseURL)
	logger.Info("hosting", "peer", peer, "join_url", joinURL)

	group := mirror.NewGroup(mirror.GroupOptions{
		Local:      mirror.Document{Content: options.text},
		SeedOnOpen: cfg.Mirror.SeedOnOpen,
		Logger:     logger,
	})
	stopFollowing := group.Follow(manager)
	defer stopFollowing()

	if err := manager.Listen(ctx); err != nil {
		return fmt.Errorf("listening as %s: %w", peer, err)
	}

	if cfg.Discovery.MDNS {
		advertisement, err := lan.Advertise(cfg.Discovery.Service, peer, server.Port(), joinURL)
		if err != nil {
			logger.Warn("mDNS advertisement failed, hosts on the LAN will not list this one", "error", err)
		} else {
			defer advertisement.Shutdown()
		}
	}

	return runUI(ctx, uiOptions{
		Title:  "mirror: hosting as " + peer,
		Banner: hostBanner(joinURL),
		View:   group,
		Screen: screen,
		Input:  os.Stdin,
		Output: os.Stdout,
		Logger: logger,
	})
}
