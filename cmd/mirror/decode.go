// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
	"github.com/bureau-foundation/mirror/lib/identity"
	"github.com/bureau-foundation/mirror/lib/rendezvous"
)

// maxPayloadSize bounds a payload read from stdin. QR codes hold a few
// kilobytes at most.
const maxPayloadSize = 64 * 1024

type decodedPayload struct {
	Peer   string `json:"peer"`
	Legacy bool   `json:"legacy"`
}

func decodeCommand() *cli.Command {
	var jsonOutput bool
	return &cli.Command{
		Name:    "decode",
		Summary: "Print the host identity carried by a scanned payload",
		Description: `Print the host identity carried by a scanned QR payload.

The payload is the argument, or stdin when none is given, so the output
of a QR scanner can be piped in. Exits 2 when the payload names no
usable host.`,
		Usage: "mirror decode [payload] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("decode", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Decode a scanned image with zbar",
				Command:     "zbarimg --raw qr.png | mirror decode",
			},
		},
		Run: func(args []string) error {
			var payload string
			switch len(args) {
			case 0:
				data, err := io.ReadAll(io.LimitReader(os.Stdin, maxPayloadSize))
				if err != nil {
					return fmt.Errorf("reading payload: %w", err)
				}
				payload = string(data)
			case 1:
				payload = args[0]
			default:
				return fmt.Errorf("expected one payload, got %d arguments", len(args))
			}
			return runDecode(payload, jsonOutput, os.Stdout, os.Stderr)
		},
	}
}

func runDecode(payload string, jsonOutput bool, stdout, stderr io.Writer) error {
	peer, ok := rendezvous.Decode(strings.TrimSpace(payload))
	if !ok {
		fmt.Fprintln(stderr, "no host identity in payload")
		return &cli.ExitError{Code: cli.ExitUnusable}
	}
	// A link can carry anything in peerId; only valid identities are
	// printed.
	if !identity.IsValid(peer) {
		fmt.Fprintf(stderr, "payload names %q, which is not a valid host identity\n", peer)
		return &cli.ExitError{Code: cli.ExitUnusable}
	}

	if jsonOutput {
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(decodedPayload{Peer: peer, Legacy: identity.IsLegacy(peer)})
	}
	fmt.Fprintln(stdout, peer)
	return nil
}
