// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package api

import "errors"

var (
	// ErrMissingSession is returned when neither the cookie nor the header
	// carries a session id.
	ErrMissingSession = errors.New("session id required")

	// ErrInvalidSession is returned when the session id does not resolve.
	ErrInvalidSession = errors.New("invalid session")
)
