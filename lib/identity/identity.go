// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"regexp"

	"github.com/rs/xid"
)

// StorageKey is the fixed key the stable identity is stored under.
// Existing installations already hold their identity under this name.
const StorageKey = "sinkhole-host-id"

// MaxLength is the longest accepted identity, in bytes.
const MaxLength = 64

// LegacyPrefix starts every legacy host id.
const LegacyPrefix = "host-"

var (
	// ErrInvalid is returned when a candidate identity matches neither
	// the slug nor the legacy format.
	ErrInvalid = errors.New("invalid peer identity")

	// ErrStorageUnavailable describes a store that cannot read or persist
	// the identity. The provider logs it and continues with an in-memory
	// identity; it is never returned from Provider.Identity.
	ErrStorageUnavailable = errors.New("identity storage unavailable")
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z]+(-[a-z]+){2,}$`)
	legacyPattern = regexp.MustCompile(`(?i)^host-[a-z0-9]+$`)
)

// IsValid reports whether candidate is a well-formed peer identity:
// non-empty, at most MaxLength bytes, and either a slug of three or
// more lowercase words or a legacy host id. The candidate is checked
// as given; callers that accept pasted input trim it first.
func IsValid(candidate string) bool {
	if candidate == "" || len(candidate) > MaxLength {
		return false
	}
	return slugPattern.MatchString(candidate) || legacyPattern.MatchString(candidate)
}

// IsLegacy reports whether candidate uses the legacy host id format.
// It does not check length; use IsValid for that.
func IsLegacy(candidate string) bool {
	return legacyPattern.MatchString(candidate)
}

// Validate returns ErrInvalid wrapped with the candidate when it is not
// a valid identity.
func Validate(candidate string) error {
	if !IsValid(candidate) {
		return &InvalidError{Candidate: candidate}
	}
	return nil
}

// InvalidError carries the rejected candidate. It matches ErrInvalid
// under errors.Is.
type InvalidError struct {
	Candidate string
}

func (e *InvalidError) Error() string {
	return "invalid peer identity " + quoteTruncated(e.Candidate)
}

func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// NewLegacy returns a fresh legacy host id. Hosts configured for
// ephemeral identities use one per process.
func NewLegacy() string {
	return LegacyPrefix + xid.New().String()
}

// quoteTruncated quotes s for an error message, cutting it at MaxLength
// so an attacker-supplied payload cannot flood the log.
func quoteTruncated(s string) string {
	if len(s) > MaxLength {
		return `"` + s[:MaxLength] + `..."`
	}
	return `"` + s + `"`
}
