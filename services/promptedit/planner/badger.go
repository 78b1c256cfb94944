// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// sessionKeyPrefix namespaces session records inside the database.
const sessionKeyPrefix = "session/"

// BadgerStoreConfig holds configuration for a BadgerStore.
type BadgerStoreConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for store operations. Badger's internal
	// logging is disabled; this logs load/write events only.
	Logger *slog.Logger
}

// BadgerStore is a SessionStore persisted in BadgerDB.
//
// Description:
//
//	Sessions live in a hot in-memory working set so the planner keeps
//	operating on a single live *EditSession per id (session locks are
//	process-local); every Put writes the JSON-encoded session through to
//	BadgerDB, and existing records are loaded back into the working set
//	on open. Persistence covers restarts, not multi-process coordination.
//
// Thread Safety: BadgerStore is safe for concurrent use.
type BadgerStore struct {
	mu       sync.RWMutex
	sessions map[string]*EditSession
	db       *badger.DB
	logger   *slog.Logger
}

// NewBadgerStore opens a BadgerDB-backed session store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must Close() when done.
//	error - Non-nil if the database cannot be opened or loaded.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent session store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	store := &BadgerStore{
		sessions: make(map[string]*EditSession),
		db:       db,
		logger:   cfg.Logger,
	}

	if err := store.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// load reads all persisted sessions into the working set.
func (s *BadgerStore) load() error {
	prefix := []byte(sessionKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read session record: %w", err)
			}

			session := &EditSession{}
			if err := json.Unmarshal(data, session); err != nil {
				// Skip unreadable records rather than refusing to start.
				s.logger.Warn("Skipping corrupt session record",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			s.sessions[session.ID] = session
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	if len(s.sessions) > 0 {
		s.logger.Info("Loaded persisted sessions",
			slog.Int("count", len(s.sessions)))
	}
	return nil
}

// sessionKey builds the database key for a session id.
func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// Get implements SessionStore.
func (s *BadgerStore) Get(id string) (*EditSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Put implements SessionStore.
//
// Description:
//
//	Installs the session in the working set and writes its JSON encoding
//	through to BadgerDB. The planner calls Put after each completed stage,
//	so the persisted record tracks the last completed stage.
func (s *BadgerStore) Put(session *EditSession) error {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
	if err != nil {
		return fmt.Errorf("persist session %s: %w", session.ID, err)
	}
	return nil
}

// Delete implements SessionStore.
func (s *BadgerStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// List implements SessionStore.
func (s *BadgerStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
