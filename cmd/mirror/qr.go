// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// renderQR draws content as a QR code in half-block characters, two
// modules per text row.
func renderQR(content string) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encoding QR code: %w", err)
	}
	return strings.TrimRight(code.ToSmallString(false), "\n"), nil
}

// hostBanner is what a host shows until someone joins: the link, and a
// QR code of it when one can be drawn.
func hostBanner(joinURL string) string {
	var banner strings.Builder
	fmt.Fprintf(&banner, "Scan to join, or run: mirror join '%s'\n", joinURL)
	if qr, err := renderQR(joinURL); err == nil {
		banner.WriteString(qr)
	}
	return strings.TrimRight(banner.String(), "\n")
}
