// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"sort"
	"sync"
)

// Registry maps an authenticated user to their single live connection.
// It is the only state shared between connections and is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]*Client)}
}

// Register binds userID to c and returns the connection it replaced, if any.
func (r *Registry) Register(userID int64, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.users[userID]
	r.users[userID] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes userID only while it is still bound to c. A connection
// that was superseded must not remove its replacement.
func (r *Registry) Unregister(userID int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.users[userID]; ok && cur == c {
		delete(r.users, userID)
		return true
	}
	return false
}

// Lookup returns the connection registered for userID.
func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.users[userID]
	return c, ok
}

// All returns a snapshot of registered connections ordered by client id.
// DETERMINISM: map iteration order is random; sorting keeps broadcast order
// stable across runs.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.users))
	for _, c := range r.users {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// UserIDs returns the registered user ids in ascending order.
func (r *Registry) UserIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
