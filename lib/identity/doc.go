// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity derives and validates the peer identity of a device.
//
// A peer identity is the name other devices use to reach this one. It
// comes in two formats:
//
//   - a slug of three or more lowercase words joined by hyphens
//     ("cozy-pine-otter"), generated once per device and persisted;
//   - a legacy host id, "host-" followed by letters and digits, which
//     older hosts used as a per-process ephemeral name.
//
// [IsValid] is the gate for untrusted input: anything scanned from a QR
// code, typed by a user, or decoded from a link must pass it before a
// connection attempt is made.
//
// [Provider] owns the device's stable identity. It reads the value from
// a [Store] under [StorageKey], and generates and persists a fresh slug
// when the stored value is missing or invalid. Storage failures degrade
// to a session-only identity: the provider logs a warning and keeps the
// generated value in memory, so callers always get a usable identity.
//
// Stores: [MemoryStore] for tests and ephemeral runs, [BoltStore] for a
// durable per-device file.
package identity
