// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"slices"
	"sync"
	"testing"
)

func TestRegistry_RegisterReplaces(t *testing.T) {
	hub := NewHub(Options{})
	r := NewRegistry()
	first := NewClient(hub, nil)
	second := NewClient(hub, nil)

	if prev := r.Register(1, first); prev != nil {
		t.Fatalf("Register() on empty registry returned %v", prev)
	}
	if prev := r.Register(1, first); prev != nil {
		t.Error("re-registering the same client should not report a previous entry")
	}
	if prev := r.Register(1, second); prev != first {
		t.Error("Register() should return the replaced client")
	}

	got, ok := r.Lookup(1)
	if !ok || got != second {
		t.Error("Lookup() should return the newest client")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_UnregisterChecksIdentity(t *testing.T) {
	hub := NewHub(Options{})
	r := NewRegistry()
	old := NewClient(hub, nil)
	current := NewClient(hub, nil)

	r.Register(1, old)
	r.Register(1, current)

	if r.Unregister(1, old) {
		t.Error("Unregister() with a superseded client must not remove the entry")
	}
	if _, ok := r.Lookup(1); !ok {
		t.Fatal("entry removed by superseded client")
	}
	if !r.Unregister(1, current) {
		t.Error("Unregister() with the current client should remove the entry")
	}
	if r.Unregister(1, current) {
		t.Error("second Unregister() should be a no-op")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_SnapshotsAreOrdered(t *testing.T) {
	hub := NewHub(Options{})
	r := NewRegistry()

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = NewClient(hub, nil)
	}
	// Register in reverse so map order and insertion order disagree.
	for i := len(clients) - 1; i >= 0; i-- {
		r.Register(int64(100-i), clients[i])
	}

	all := r.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID() >= all[i].ID() {
			t.Fatalf("All() not sorted by client id at %d", i)
		}
	}

	ids := r.UserIDs()
	if !slices.IsSorted(ids) || len(ids) != 5 {
		t.Errorf("UserIDs() = %v, want 5 sorted ids", ids)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	hub := NewHub(Options{})
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := NewClient(hub, nil)
			r.Register(id, c)
			r.Lookup(id)
			r.All()
			r.Unregister(id, c)
		}(int64(i))
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after all unregistered, want 0", r.Len())
	}
}
