// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
	"github.com/bureau-foundation/mirror/mirror"
	"github.com/bureau-foundation/mirror/session"
)

type joinOptions struct {
	configPath string
	url        string
	plain      bool
}

func joinCommand() *cli.Command {
	var options joinOptions
	return &cli.Command{
		Name:    "join",
		Summary: "Join a host by link or identity",
		Description: `Join a host and mirror its document.

The argument is the join link shown by "mirror host" (or scanned from
its QR code), or the host's identity typed by hand. A bare identity
needs --url or signaling.url to find the host. The session ends when
the host goes away; run join again to reconnect.`,
		Usage: "mirror join <link|id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			addConfigFlag(flagSet, &options.configPath)
			flagSet.StringVar(&options.url, "url", "", "host base URL, e.g. http://192.168.1.20:3000 (overrides the link)")
			flagSet.BoolVar(&options.plain, "plain", false, "line mode even on a terminal")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Join through a link",
				Command:     "mirror join 'http://192.168.1.20:3000/join?peerId=cozy-pine-otter'",
			},
			{
				Description: "Join by identity",
				Command:     "mirror join cozy-pine-otter --url http://192.168.1.20:3000",
			},
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("expected one link or identity, got %d arguments", len(args))
			}
			reference := ""
			if len(args) == 1 {
				reference = args[0]
			}
			return runJoin(options, reference)
		},
	}
}

// resolveHost turns the user's reference into a peer identity,
// printing why it is unusable when it is.
func resolveHost(reference string, stderr io.Writer) (string, error) {
	peer, err := rendezvous.ParseReference(reference)
	switch {
	case err == nil:
		return peer, nil
	case errors.Is(err, rendezvous.ErrMissing):
		fmt.Fprintln(stderr, "No join link given. Run \"mirror host\" on the other device and scan the QR code it shows.")
	default:
		fmt.Fprintln(stderr, "Invalid or unsupported link. Use the QR code from the host device to join.")
	}
	return "", &cli.ExitError{Code: cli.ExitUnusable}
}

// joinBaseURL picks the host origin: the flag, then configuration,
// then the link itself.
func joinBaseURL(flagURL, configured, reference string) string {
	if flagURL != "" {
		return flagURL
	}
	if configured != "" {
		return configured
	}
	return originOf(reference)
}

func runJoin(options joinOptions, reference string) error {
	hostPeer, err := resolveHost(reference, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(options.configPath)
	if err != nil {
		return err
	}

	screen := !options.plain && cli.IsTerminal(os.Stdin) && cli.IsTerminal(os.Stdout)
	logger, closeLog, err := cli.NewLogger(cfg.Logging, cli.LoggerOptions{Screen: screen})
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("command", "join", "host", hostPeer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, closeStore := openProvider(cfg, logger)
	localPeer := provider.Identity()
	closeStore()

	baseURL := joinBaseURL(options.url, cfg.Signaling.URL, reference)
	joinTransport, closeTransport, err := newJoinTransport(ctx, cfg, baseURL, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	connectTimeout, err := cfg.ConnectTimeoutDuration()
	if err != nil {
		return err
	}
	manager, err := session.New(session.Config{
		LocalPeer:      localPeer,
		Transport:      joinTransport,
		Logger:         logger,
		ConnectTimeout: connectTimeout,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	group := mirror.NewGroup(mirror.GroupOptions{Logger: logger})
	stopFollowing := group.Follow(manager)
	defer stopFollowing()

	fmt.Fprintf(os.Stderr, "connecting to %s as %s...\n", hostPeer, localPeer)
	pending, err := manager.ConnectTo(ctx, hostPeer)
	if err != nil {
		return err
	}
	conn, err := pending.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, session.ErrPeerUnreachable) {
			return fmt.Errorf("%s did not answer; check that it is still hosting and on a network this device can reach: %w", hostPeer, err)
		}
		return err
	}

	return runUI(ctx, uiOptions{
		Title:          "mirror: " + localPeer + " joined " + hostPeer,
		View:           group,
		Finished:       conn.Done(),
		FinishedReason: hostPeer + " ended the session",
		Screen:         screen,
		Input:          os.Stdin,
		Output:         os.Stdout,
		Logger:         logger,
	})
}
