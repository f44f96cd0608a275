// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"sync"

	petname "github.com/dustinkirkland/golang-petname"
)

// slugWords is the number of words in a generated slug.
const slugWords = 3

var (
	// petname draws from one package-level source that starts from a
	// fixed seed and is not safe for concurrent use.
	slugMu   sync.Mutex
	slugSeed sync.Once
)

// GenerateSlug returns a random three-word slug such as
// "mostly-cozy-otter".
func GenerateSlug() string {
	slugSeed.Do(petname.NonDeterministicMode)

	slugMu.Lock()
	defer slugMu.Unlock()
	return petname.Generate(slugWords, "-")
}
