// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the store circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("store circuit open")

// ConversationStore resolves conversation membership.
type ConversationStore interface {
	// Participants returns the active members of a conversation, excluding
	// the given user. Members who left the conversation are not returned.
	Participants(ctx context.Context, conversationID, excluding int64) ([]int64, error)
}

// NotificationCounter reports unread notifications.
type NotificationCounter interface {
	UnreadNotifications(ctx context.Context, userID int64) (int64, error)
}

// PresenceRecorder persists a presence change outside the registry.
type PresenceRecorder interface {
	RecordPresence(ctx context.Context, userID int64, online bool, at time.Time) error
}

// LastSeenReader reads the persisted last-seen time of a user. ok is false
// when nothing was ever recorded.
type LastSeenReader interface {
	LastSeen(ctx context.Context, userID int64) (at time.Time, ok bool, err error)
}

// Backend is the full relational store surface used by the server.
type Backend interface {
	ConversationStore
	NotificationCounter
	PresenceRecorder
	LastSeenReader
	Ping(ctx context.Context) error
	Close()
}

// MemoryStore is an in-memory Backend used when no database is configured
// and in tests.
type MemoryStore struct {
	mu           sync.RWMutex
	participants map[int64]map[int64]bool // conversation -> user -> active
	unread       map[int64]int64
	lastSeen     map[int64]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[int64]map[int64]bool),
		unread:       make(map[int64]int64),
		lastSeen:     make(map[int64]time.Time),
	}
}

// Join adds users to a conversation.
func (m *MemoryStore) Join(conversationID int64, userIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.participants[conversationID]
	if members == nil {
		members = make(map[int64]bool)
		m.participants[conversationID] = members
	}
	for _, id := range userIDs {
		members[id] = true
	}
}

// Leave marks a user as having left a conversation.
func (m *MemoryStore) Leave(conversationID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members := m.participants[conversationID]; members != nil {
		members[userID] = false
	}
}

// SetUnread sets the unread notification count for a user.
func (m *MemoryStore) SetUnread(userID, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread[userID] = count
}

// LastSeen implements LastSeenReader.
func (m *MemoryStore) LastSeen(_ context.Context, userID int64) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastSeen[userID]
	return t, ok, nil
}

// Participants implements ConversationStore.
func (m *MemoryStore) Participants(_ context.Context, conversationID, excluding int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, active := range m.participants[conversationID] {
		if active && id != excluding {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// UnreadNotifications implements NotificationCounter.
func (m *MemoryStore) UnreadNotifications(_ context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unread[userID], nil
}

// RecordPresence implements PresenceRecorder.
func (m *MemoryStore) RecordPresence(_ context.Context, userID int64, _ bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[userID] = at
	return nil
}

// Ping implements Backend.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Backend.
func (m *MemoryStore) Close() {}
