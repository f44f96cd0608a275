// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
	"github.com/bureau-foundation/mirror/lib/version"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintf(os.Stdout, "mirror %s\n", version.Full())
			return nil
		},
	}
}
