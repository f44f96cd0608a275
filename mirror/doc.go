// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror keeps a shared document in step across one connection.
//
// A [Channel] attaches to an open [transport.Conn] and exchanges whole
// documents as JSON messages:
//
//	{"type": "instant-mirror-sync", "state": {"content": "..."}}
//
// Pushing applies the document locally and sends it if the connection is
// open. Receiving replaces the local document wholesale; last writer
// wins and nothing is merged. Payloads that are not well-formed sync
// messages are discarded. A received document is never echoed back.
//
// A [Group] follows a [session.Manager] and runs one Channel per
// connection, which is how a host mirrors with several joiners at once
// while keeping each conversation separate.
package mirror
