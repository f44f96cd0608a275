// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mirror/cmd/mirror/cli"
	"github.com/bureau-foundation/mirror/lib/lan"
)

func discoverCommand() *cli.Command {
	var (
		configPath string
		timeout    time.Duration
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "discover",
		Summary: "List hosts advertising on the LAN",
		Description: `Browse mDNS for running hosts and list them with their join links.

Hosts advertise while discovery.mdns is enabled (the default).`,
		Usage: "mirror discover [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("discover", pflag.ContinueOnError)
			addConfigFlag(flagSet, &configPath)
			flagSet.DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for advertisements")
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON")
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

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			hosts, err := lan.Browse(ctx, cfg.Discovery.Service, logger)
			if err != nil {
				return err
			}
			return printHosts(os.Stdout, hosts, jsonOutput)
		},
	}
}

func printHosts(w io.Writer, hosts []lan.Host, jsonOutput bool) error {
	if jsonOutput {
		if hosts == nil {
			hosts = []lan.Host{}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(hosts)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(w, "no hosts found")
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "HOST\tJOIN LINK\tADDRESSES")
	for _, host := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", host.Peer, host.URL, joinAddresses(host.Addresses))
	}
	return tw.Flush()
}

func joinAddresses(addresses []net.IP) string {
	parts := make([]string, len(addresses))
	for i, address := range addresses {
		parts[i] = address.String()
	}
	return strings.Join(parts, ",")
}
