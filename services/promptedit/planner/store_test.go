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
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	sess, err := NewSession("store me", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Put(sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := store.Get(sess.ID)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != sess {
		t.Error("Get() returned a different pointer, want the stored session")
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}

	ids := store.List()
	if len(ids) != 1 || ids[0] != sess.ID {
		t.Errorf("List() = %v, want [%s]", ids, sess.ID)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Get(sess.ID); ok {
		t.Error("Get() after Delete() ok = true, want false")
	}
}

func newBadgerStore(t *testing.T, path string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerStoreConfig{
		Path:   path,
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	return store
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store := newBadgerStore(t, dir)
	sess, err := NewSession("persist me", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	sess.SetPlan([]*CodeEdit{{
		SessionID:       sess.ID,
		FilePath:        "a.py",
		EditType:        EditCreate,
		ProposedContent: strPtr("x = 1\n"),
	}}, "one file")
	sess.SetStatus(StatusPlanGenerated)
	if err := store.Put(sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen over the same directory and verify the session came back.
	reopened := newBadgerStore(t, dir)
	defer reopened.Close()

	loaded, ok := reopened.Get(sess.ID)
	if !ok {
		t.Fatal("Get() after reopen ok = false, want true")
	}
	if loaded.Prompt != "persist me" {
		t.Errorf("prompt = %q, want %q", loaded.Prompt, "persist me")
	}
	if got := loaded.GetStatus(); got != StatusPlanGenerated {
		t.Errorf("status = %v, want %v", got, StatusPlanGenerated)
	}
	edits := loaded.GetEdits()
	if len(edits) != 1 || edits[0].Proposed() != "x = 1\n" {
		t.Errorf("edits = %v, want the persisted plan", edits)
	}

	// A loaded session starts unheld.
	if !loaded.TryAcquire() {
		t.Error("TryAcquire() on loaded session = false, want true")
	}
	loaded.Release()
}

func TestBadgerStore_SkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()

	store := newBadgerStore(t, dir)
	sess, err := NewSession("survive the corruption", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(sess); err != nil {
		t.Fatal(err)
	}

	// Plant a record that does not decode.
	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey("corrupt"), []byte("{not json"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := newBadgerStore(t, dir)
	defer reopened.Close()

	if _, ok := reopened.Get(sess.ID); !ok {
		t.Error("valid session missing after reopen, want it loaded")
	}
	if len(reopened.List()) != 1 {
		t.Errorf("session count = %d, want 1 with the corrupt record skipped", len(reopened.List()))
	}
}

func TestBadgerStore_Delete(t *testing.T) {
	dir := t.TempDir()

	store := newBadgerStore(t, dir)
	sess, err := NewSession("delete me", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(sess); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// The delete is durable.
	reopened := newBadgerStore(t, dir)
	defer reopened.Close()
	if _, ok := reopened.Get(sess.ID); ok {
		t.Error("Get() after durable delete ok = true, want false")
	}
}

func TestBadgerStore_InMemoryMode(t *testing.T) {
	store, err := NewBadgerStore(BadgerStoreConfig{
		InMemory: true,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewBadgerStore() error = %v", err)
	}
	defer store.Close()

	sess, err := NewSession("ephemeral", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := store.Get(sess.ID); !ok {
		t.Error("Get() ok = false, want true")
	}
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	if _, err := NewBadgerStore(BadgerStoreConfig{}); err == nil {
		t.Fatal("NewBadgerStore() error = nil, want a path requirement error")
	}
}
