// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the mirror binary:
// a tree of [Command] values with pflag flag sets, structured help, and
// typo suggestions for unknown commands and flags.
//
// Commands return errors. A command that has already reported its own
// failure returns an [ExitError] so main exits with the right code
// without printing a second message.
package cli
