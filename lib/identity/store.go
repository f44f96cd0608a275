// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Store is device-local key/value storage for the identity. Get returns
// ok=false when the key has never been set.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStore is a Store held in process memory. The zero value is
// ready to use. FailWith makes every later operation return an error,
// simulating storage that is full or disabled.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	failure error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes subsequent operations return err. Pass nil to recover.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return "", false, s.failure
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	delete(s.values, key)
	return nil
}

// boltBucket holds every identity key in a BoltStore file.
var boltBucket = []byte("identity")

// boltOpenTimeout bounds how long OpenBoltStore waits for the file lock
// held by another mirror process.
const boltOpenTimeout = time.Second

// BoltStore is a Store backed by a bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if needed) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening identity store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating identity bucket in %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(key string) (string, bool, error) {
	var value string
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return errors.New("identity bucket missing")
		}
		data := bucket.Get([]byte(key))
		if data != nil {
			value, ok = string(data), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, ok, nil
}

func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
