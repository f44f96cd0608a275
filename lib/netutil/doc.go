// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network helpers for the mirror binary.
//
// [LocalIPv4] picks the address a phone on the same Wi-Fi network is
// most likely to reach, so the host's join link points somewhere
// useful instead of at loopback. Interface names are ranked: wireless
// and ethernet interfaces first, tunnels, virtual bridges and container
// networks never.
//
// [DecodeResponse] and [ErrorBody] bound HTTP response reads at
// [MaxResponseSize]. [IsExpectedCloseError] classifies errors produced
// by ordinary connection teardown so they are not logged as failures.
package netutil
