// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rendezvous

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/mirror/lib/netutil"
)

// LocalAddressPath is the host endpoint reporting its LAN address.
const LocalAddressPath = "/api/local-ip"

// ResolveBaseURL picks the base URL to put in join links for a host
// reachable at origin. When origin is loopback, which a phone on the
// LAN cannot reach, the host's LAN address from LocalAddressPath is
// used instead. Any lookup failure falls back to origin: rendezvous
// generation never blocks on it.
func ResolveBaseURL(ctx context.Context, client *http.Client, origin string) string {
	origin = strings.TrimRight(origin, "/")
	parsed, err := url.Parse(origin)
	if err != nil || !isLoopbackHost(parsed.Hostname()) {
		return origin
	}

	address, err := FetchLocalAddress(ctx, client, origin)
	if err != nil || address.IP == "" || address.Port == 0 {
		return origin
	}
	return strings.TrimRight(address.URL, "/")
}

// FetchLocalAddress asks the host at origin for its LAN address.
func FetchLocalAddress(ctx context.Context, client *http.Client, origin string) (netutil.LocalAddress, error) {
	var address netutil.LocalAddress

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(origin, "/")+LocalAddressPath, nil)
	if err != nil {
		return address, fmt.Errorf("building local address request: %w", err)
	}
	response, err := client.Do(request)
	if err != nil {
		return address, fmt.Errorf("fetching local address: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return address, fmt.Errorf("fetching local address: HTTP %d: %s",
			response.StatusCode, netutil.ErrorBody(response.Body))
	}
	if err := netutil.DecodeResponse(response.Body, &address); err != nil {
		return address, fmt.Errorf("decoding local address: %w", err)
	}
	if address.URL == "" && address.IP != "" {
		address = netutil.NewLocalAddress(address.IP, address.Port)
	}
	return address, nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
