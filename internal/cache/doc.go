// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package cache provides a thread-safe LRU cache with per-entry TTL.

It sits in front of session lookups so that a reconnect storm after a deploy
does not turn into one store round trip per auth frame.

Characteristics:
  - O(1) Get, Add and Remove (hash map plus doubly-linked list)
  - Least recently used entry evicted at capacity
  - Lazy expiration on Get, plus CleanupExpired for a periodic sweep
  - Hit/miss counters via Stats

Example:

	c := cache.NewLRU[int64](10000, 30*time.Second)
	c.Add(sessionID, userID)
	if userID, ok := c.Get(sessionID); ok { ... }
*/
package cache
