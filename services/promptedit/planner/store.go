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

import "sync"

// SessionStore manages process-wide session storage.
//
// The planner is the store's only writer. Sessions are created on submit,
// read and updated on stage calls, and never deleted by the core; Delete
// exists for explicit external cleanup only. Implementations must not
// depend on in-memory-only semantics beyond returning the same live
// *EditSession pointer for a given id between Puts.
type SessionStore interface {
	// Get retrieves a session by ID.
	Get(id string) (*EditSession, bool)

	// Put stores the session's current state.
	Put(session *EditSession) error

	// Delete removes a session. Never called by the planner.
	Delete(id string) error

	// List returns all stored session IDs.
	List() []string
}

// InMemoryStore is a simple in-memory session store.
//
// Thread Safety: InMemoryStore is safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*EditSession
}

// NewInMemoryStore creates a new in-memory session store.
//
// Outputs:
//
//	*InMemoryStore - The new store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*EditSession),
	}
}

// Get implements SessionStore.
func (s *InMemoryStore) Get(id string) (*EditSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Put implements SessionStore.
func (s *InMemoryStore) Put(session *EditSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// Delete implements SessionStore.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List implements SessionStore.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
