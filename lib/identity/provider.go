// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"log/slog"
	"sync"
)

// Provider returns the stable identity of this device. It is safe for
// concurrent use.
type Provider struct {
	store    Store
	logger   *slog.Logger
	generate func() string

	mu      sync.Mutex
	current string
}

// NewProvider returns a Provider reading and persisting through store.
// A nil logger means slog.Default.
func NewProvider(store Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:    store,
		logger:   logger,
		generate: GenerateSlug,
	}
}

// Identity returns the device's peer identity. The first call reads the
// store; when the stored value is absent or invalid a fresh slug is
// generated and persisted. Later calls return the same value without
// touching the store.
//
// Identity never fails. If the store cannot be read or written, the
// failure is logged as ErrStorageUnavailable and the generated value
// lives only as long as this Provider.
func (p *Provider) Identity() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != "" {
		return p.current
	}

	stored, ok, err := p.store.Get(StorageKey)
	switch {
	case err != nil:
		p.logger.Warn("reading stored identity failed, using a session-only identity",
			"error", fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
	case ok && IsValid(stored):
		p.current = stored
		return p.current
	case ok:
		p.logger.Info("replacing invalid stored identity", "stored", quoteTruncated(stored))
	}

	fresh := p.generate()
	if err == nil {
		if setErr := p.store.Set(StorageKey, fresh); setErr != nil {
			p.logger.Warn("persisting identity failed, identity will not survive restart",
				"identity", fresh,
				"error", fmt.Errorf("%w: %w", ErrStorageUnavailable, setErr))
		} else {
			p.logger.Info("generated device identity", "identity", fresh)
		}
	}
	p.current = fresh
	return p.current
}

// Reset forgets the stored identity. The next call to Identity
// generates a new one.
func (p *Provider) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = ""
	if err := p.store.Delete(StorageKey); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}
