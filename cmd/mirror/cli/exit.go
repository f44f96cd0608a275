// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes used by mirror commands.
const (
	// ExitFailure is the generic failure code.
	ExitFailure = 1

	// ExitUnusable means the user supplied a link or code that does not
	// name a peer.
	ExitUnusable = 2
)

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already written its
// own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to tell "handled non-zero exit" from "unexpected
// error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}
