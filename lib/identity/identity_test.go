// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"three word slug", "cozy-pine-otter", true},
		{"four word slug", "brave-red-fox-den", true},
		{"legacy lowercase", "host-abc123", true},
		{"legacy mixed case", "HOST-AbC123", true},
		{"empty", "", false},
		{"two word slug", "cozy-pine", false},
		{"single word", "otter", false},
		{"uppercase slug", "Cozy-Pine-Otter", false},
		{"digits in slug", "cozy-pine-0tter", false},
		{"trailing hyphen", "cozy-pine-otter-", false},
		{"double hyphen", "cozy--pine-otter", false},
		{"legacy without suffix", "host-", false},
		{"legacy with punctuation", "host-abc_123", false},
		{"surrounding whitespace", " cozy-pine-otter ", false},
		{"url", "http://example.com/join?peerId=cozy-pine-otter", false},
		{"unicode", "cozy-pïne-otter", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsValid(test.candidate); got != test.want {
				t.Errorf("IsValid(%q) = %v, want %v", test.candidate, got, test.want)
			}
		})
	}
}

func TestIsValid_LengthBound(t *testing.T) {
	// "host-" plus 59 characters is exactly 64.
	atLimit := LegacyPrefix + strings.Repeat("a", MaxLength-len(LegacyPrefix))
	if !IsValid(atLimit) {
		t.Errorf("IsValid(%d bytes) = false, want true", len(atLimit))
	}
	overLimit := atLimit + "a"
	if IsValid(overLimit) {
		t.Errorf("IsValid(%d bytes) = true, want false", len(overLimit))
	}

	longSlug := strings.Repeat("a", 30) + "-" + strings.Repeat("b", 30) + "-" + strings.Repeat("c", 10)
	if IsValid(longSlug) {
		t.Errorf("IsValid(%d byte slug) = true, want false", len(longSlug))
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("cozy-pine-otter"); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	err := Validate("not a peer")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate(invalid) = %v, want ErrInvalid", err)
	}
	var invalid *InvalidError
	if !errors.As(err, &invalid) || invalid.Candidate != "not a peer" {
		t.Errorf("errors.As InvalidError = %+v", invalid)
	}

	long := Validate(strings.Repeat("x", 500))
	if len(long.Error()) > 2*MaxLength {
		t.Errorf("error message not truncated: %d bytes", len(long.Error()))
	}
}

func TestGenerateSlug(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		slug := GenerateSlug()
		if !IsValid(slug) {
			t.Fatalf("GenerateSlug() = %q, not a valid identity", slug)
		}
		if IsLegacy(slug) {
			t.Fatalf("GenerateSlug() = %q, looks like a legacy id", slug)
		}
		if parts := strings.Split(slug, "-"); len(parts) != 3 {
			t.Fatalf("GenerateSlug() = %q, want three words", slug)
		}
		seen[slug] = true
	}
	if len(seen) < 190 {
		t.Errorf("GenerateSlug produced %d distinct slugs in 200 calls", len(seen))
	}
}

func TestNewLegacy(t *testing.T) {
	first := NewLegacy()
	second := NewLegacy()
	if !IsValid(first) || !IsLegacy(first) {
		t.Errorf("NewLegacy() = %q, want a valid legacy id", first)
	}
	if first == second {
		t.Errorf("NewLegacy() returned %q twice", first)
	}
}
