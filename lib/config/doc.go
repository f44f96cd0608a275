// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the mirror binary.
//
// Configuration comes from a single file named by the MIRROR_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery: without either, the binary runs
// on [Default]. Files ending in .json or .jsonc are read as JSON with
// comments and trailing commas; anything else is YAML.
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches. Production
// without an explicit section switches logs to JSON.
//
// After loading, ${HOME} and ${VAR:-default} patterns are expanded in
// path fields. No other environment variables override config values.
//
// [Config.Validate] reports every problem at once.
package config
