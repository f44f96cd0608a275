// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by this module's tests.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] wrap the
// select-with-timeout pattern so individual tests never hang on a
// channel that is not going to fire. [Eventually] polls a condition
// that has no channel to wait on.
//
// Helpers fail the test with Fatalf; setup failures are not recoverable.
package testutil
