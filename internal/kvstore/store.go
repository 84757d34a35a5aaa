// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package kvstore wraps the embedded BadgerDB instance shared by the
// release cache and the artwork cache.
//
// Values are JSON documents under string keys. Callers partition the
// keyspace with a prefix ("release:", "artwork:") and may attach a TTL,
// in which case Badger expires the key on its own.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cruisecontrol/internal/logging"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("key not found")

// Store is a JSON document store over BadgerDB. Safe for concurrent use.
type Store struct {
	db         *badger.DB
	gcInterval time.Duration
}

// Options configures Open.
type Options struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// GCInterval is how often Serve runs value-log GC. Default 10m.
	GCInterval time.Duration
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("kvstore path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
		bopts.Compression = options.Snappy
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	gc := opts.GCInterval
	if gc <= 0 {
		gc = 10 * time.Minute
	}

	logging.Info().Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("Key/value store opened")
	return &Store{db: db, gcInterval: gc}, nil
}

// OpenInMemory opens a throwaway in-memory store, for tests.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetJSON decodes the value under key into dst.
func (s *Store) GetJSON(key string, dst any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
}

// SetJSON stores v under key. A positive ttl expires the key.
func (s *Store) SetJSON(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// Keys returns every live key with the given prefix, prefix stripped.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(p):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", prefix, err)
	}
	return keys, nil
}

// DropPrefix deletes every key with the given prefix.
func (s *Store) DropPrefix(prefix string) error {
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("drop prefix %s: %w", prefix, err)
	}
	return nil
}

// Serve runs value-log garbage collection until ctx is done.
// It satisfies suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runGC()
		}
	}
}

// runGC reclaims value-log space until Badger reports nothing to rewrite.
func (s *Store) runGC() {
	rewrites := 0
	for {
		err := s.db.RunValueLogGC(0.5)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) && !errors.Is(err, badger.ErrGCInMemoryMode) {
				logging.Warn().Err(err).Msg("Value log GC failed")
			}
			break
		}
		rewrites++
	}
	if rewrites > 0 {
		logging.Debug().Int("rewrites", rewrites).Msg("Value log GC completed")
	}
}

// String names the service in supervisor logs.
func (s *Store) String() string {
	return "kvstore-gc"
}
