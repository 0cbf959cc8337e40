// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/idem-realtime/internal/cache"
	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/metrics"
)

// Validator resolves an opaque session id to a user id.
//
// Empty, expired and unknown ids yield ok == false. That is not an error,
// only "not authenticated".
type Validator interface {
	Validate(ctx context.Context, sessionID string) (userID int64, ok bool)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, sessionID string) (int64, bool)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, sessionID string) (int64, bool) {
	return f(ctx, sessionID)
}

// StoreValidator validates sessions against a Store with a bounded lookup time.
type StoreValidator struct {
	store   Store
	timeout time.Duration

	// cache holds recently validated sessions; nil disables it.
	cache *cache.LRU[*Session]
}

// NewValidator returns a Validator backed by store. Each lookup is bounded
// by timeout; zero means no extra bound beyond the caller's context.
func NewValidator(store Store, timeout time.Duration) *StoreValidator {
	return &StoreValidator{store: store, timeout: timeout}
}

// WithCache remembers valid sessions for ttl so repeated auth frames skip
// the store. Only hits are cached; a session deleted from the store stays
// valid here for at most ttl unless Forget is called. ttl <= 0 leaves the
// cache off.
func (v *StoreValidator) WithCache(size int, ttl time.Duration) *StoreValidator {
	if ttl > 0 {
		v.cache = cache.NewLRU[*Session](size, ttl)
	}
	return v
}

// Forget drops sessionID from the cache.
func (v *StoreValidator) Forget(sessionID string) {
	if v.cache != nil {
		v.cache.Remove(sessionID)
	}
}

// SweepCache removes expired cache entries. It satisfies the periodic
// service task signature.
func (v *StoreValidator) SweepCache(context.Context) error {
	if v.cache != nil {
		v.cache.CleanupExpired()
	}
	return nil
}

// Validate implements Validator.
func (v *StoreValidator) Validate(ctx context.Context, sessionID string) (int64, bool) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, false
	}

	if v.cache != nil {
		if sess, ok := v.cache.Get(sessionID); ok {
			if !sess.IsExpired() {
				metrics.SessionCacheLookups.WithLabelValues("hit").Inc()
				return sess.UserID, true
			}
			v.cache.Remove(sessionID)
		}
		metrics.SessionCacheLookups.WithLabelValues("miss").Inc()
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	sess, err := v.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		logging.Ctx(ctx).Debug().Err(err).Msg("session rejected")
		return 0, false
	case err != nil:
		logging.Ctx(ctx).Warn().Err(err).Msg("session lookup failed")
		return 0, false
	}

	if sess.UserID <= 0 {
		return 0, false
	}
	if v.cache != nil {
		v.cache.Add(sessionID, sess)
	}
	return sess.UserID, true
}

// Open creates the Store selected by kind ("memory", "badger" or "redis").
// rdb is only used by the redis backend.
func Open(kind, path string, rdb *redis.Client) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(path)
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis session store requires a redis client")
		}
		return NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}
