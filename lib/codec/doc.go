// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the module's CBOR configuration.
//
// JSON is used wherever another device or a human reads the bytes: the
// mirror wire message, the HTTP API, CLI output. CBOR is used for
// records only this module reads back: the offer and answer records
// the Redis signaler stores in per-peer hashes.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// value always produces the same bytes. Decoding ignores unknown fields,
// which lets older binaries read records written by newer ones.
//
// Types that are only ever CBOR carry `cbor` struct tags. Never put both
// `cbor` and `json` tags on one field.
package codec
