// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command mirror mirrors one text document between two devices. One
// device hosts and shows a join link with its QR code; the other joins
// through the link and both see every edit as it is typed.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError with
		// the desired exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.ExitFailure)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "mirror",
		Description: `Mirror a text document between two devices.

One device runs "mirror host", which prints a join link and its QR code.
The other scans the code or runs "mirror join" with the link, and from
then on both edit the same text. Devices find each other over WebRTC,
signaled through the host, or over a plain WebSocket on the LAN.`,
		Subcommands: []*cli.Command{
			hostCommand(),
			joinCommand(),
			decodeCommand(),
			discoverCommand(),
			idCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Host a document on this machine",
				Command:     "mirror host",
			},
			{
				Description: "Join the host named in a scanned link",
				Command:     "mirror join 'http://192.168.1.20:3000/join?peerId=cozy-pine-otter'",
			},
		},
	}
}
