// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
	"strings"
)

// preferredPrefixes are interface name prefixes for Wi-Fi and wired LAN
// adapters (en0 on macOS, wlan0 and eth0 on Linux).
var preferredPrefixes = []string{"en0", "en1", "wlan", "eth", "wl"}

// skippedPrefixes are tunnels, hypervisor and container bridges, and
// loopback. Peers on the LAN cannot reach these.
var skippedPrefixes = []string{"utun", "vmnet", "vbox", "docker", "bridge", "veth", "lo"}

// fallbackHost is returned when no usable interface exists.
const fallbackHost = "localhost"

// Candidate is one IPv4 address bound to a named interface.
type Candidate struct {
	Interface string
	Address   net.IP
}

// LocalAddress is the JSON body of the host's local address endpoint.
type LocalAddress struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// NewLocalAddress builds the response for ip and port.
func NewLocalAddress(ip string, port int) LocalAddress {
	return LocalAddress{
		IP:   ip,
		Port: port,
		URL:  fmt.Sprintf("http://%s", net.JoinHostPort(ip, fmt.Sprint(port))),
	}
}

// LocalIPv4 returns the best LAN IPv4 address of this machine, or
// "localhost" when none can be determined.
func LocalIPv4() string {
	candidates, err := interfaceCandidates()
	if err != nil {
		return fallbackHost
	}
	return SelectLANAddress(candidates)
}

// SelectLANAddress applies the interface ranking to candidates: skipped
// interfaces and non-IPv4 or loopback addresses are dropped, the first
// preferred interface wins, then the first remaining candidate.
func SelectLANAddress(candidates []Candidate) string {
	var usable []Candidate
	for _, candidate := range candidates {
		name := strings.ToLower(candidate.Interface)
		if hasAnyPrefix(name, skippedPrefixes) {
			continue
		}
		ipv4 := candidate.Address.To4()
		if ipv4 == nil || ipv4.IsLoopback() {
			continue
		}
		usable = append(usable, Candidate{Interface: name, Address: ipv4})
	}

	for _, candidate := range usable {
		if hasAnyPrefix(candidate.Interface, preferredPrefixes) {
			return candidate.Address.String()
		}
	}
	if len(usable) > 0 {
		return usable[0].Address.String()
	}
	return fallbackHost
}

func interfaceCandidates() ([]Candidate, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addresses, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, address := range addresses {
			if network, ok := address.(*net.IPNet); ok {
				candidates = append(candidates, Candidate{
					Interface: iface.Name,
					Address:   network.IP,
				})
			}
		}
	}
	return candidates, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
