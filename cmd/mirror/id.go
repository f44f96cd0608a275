// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
)

func idCommand() *cli.Command {
	var (
		configPath string
		reset      bool
	)
	return &cli.Command{
		Name:    "id",
		Summary: "Print this device's identity",
		Description: `Print the identity this device hosts and joins as.

The identity is generated on first use and kept in identity.store.
--reset forgets it and prints the replacement; links shown by earlier
hosts stop working.`,
		Usage: "mirror id [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("id", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			flagSet.BoolVar(&reset, "reset", false, "generate a new identity")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger, closeLog, err := cli.NewLogger(cfg.Logging, cli.LoggerOptions{})
			if err != nil {
				return err
			}
			defer closeLog()

			provider, closeStore := openProvider(cfg, logger)
			defer closeStore()
			if reset {
				if err := provider.Reset(); err != nil {
					return err
				}
			}
			fmt.Fprintln(os.Stdout, provider.Identity())
			return nil
		},
	}
}
