// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the mirror binary.
//
// Values are injected with -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/mirror/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns "<version> (<commit>, <build time>)".
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
