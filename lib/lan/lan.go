// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lan advertises running mirror hosts over mDNS and finds them.
//
// A host registers a DNS-SD instance named after its peer identity
// with TXT records carrying the identity and its join URL. Browsing
// collects every instance answering within the caller's deadline.
// Records whose identity fails identity.IsValid are dropped: the
// network is untrusted input like any scanned payload.
package lan

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/bureau-foundation/mirror/lib/identity"
)

// Domain is the mDNS domain for every registration and browse.
const Domain = "local."

// TXT record keys.
const (
	txtPeer = "peerId"
	txtURL  = "url"
)

// Host is one advertised mirror host.
type Host struct {
	Peer      string   `json:"peer"`
	URL       string   `json:"url"`
	Port      int      `json:"port"`
	Addresses []net.IP `json:"addresses"`
}

// Advertisement is a live mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers peer on port under service, with joinURL in the
// TXT record. Call Shutdown to withdraw it.
func Advertise(service, peer string, port int, joinURL string) (*Advertisement, error) {
	server, err := zeroconf.Register(peer, service, Domain, port, TXTRecords(peer, joinURL), nil)
	if err != nil {
		return nil, fmt.Errorf("registering %s on mDNS: %w", peer, err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	a.server.Shutdown()
}

// TXTRecords builds the TXT strings for an advertisement.
func TXTRecords(peer, joinURL string) []string {
	return []string{txtPeer + "=" + peer, txtURL + "=" + joinURL}
}

// ParseTXT recovers a Host from TXT strings. ok is false when the
// record carries no valid identity.
func ParseTXT(txt []string) (Host, bool) {
	var host Host
	for _, record := range txt {
		key, value, found := strings.Cut(record, "=")
		if !found {
			continue
		}
		switch key {
		case txtPeer:
			host.Peer = value
		case txtURL:
			host.URL = value
		}
	}
	if !identity.IsValid(host.Peer) {
		return Host{}, false
	}
	return host, true
}

// Browse collects hosts advertising service until ctx is done, sorted
// by peer identity. A host seen on several interfaces appears once.
func Browse(ctx context.Context, service string, logger *slog.Logger) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("creating mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browsing %s: %w", service, err)
	}

	found := make(map[string]Host)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return sortHosts(found), nil
			}
			host, valid := ParseTXT(entry.Text)
			if !valid {
				logger.Debug("ignoring mDNS entry without a valid identity",
					"instance", entry.Instance)
				continue
			}
			host.Port = entry.Port
			host.Addresses = append(host.Addresses, entry.AddrIPv4...)
			if existing, seen := found[host.Peer]; seen {
				host.Addresses = append(existing.Addresses, host.Addresses...)
			}
			found[host.Peer] = host
		case <-ctx.Done():
			return sortHosts(found), nil
		}
	}
}

func sortHosts(found map[string]Host) []Host {
	hosts := make([]Host, 0, len(found))
	for _, host := range found {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Peer < hosts[j].Peer })
	return hosts
}
