// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: reuses or generates X-Request-ID and stores it in the
    request context so logging.Ctx picks it up
  - PrometheusMetrics: per-route request counts and latency, labelled with
    the chi route pattern rather than the raw path

Both are plain func(http.Handler) http.Handler and plug into chi's r.Use.
PrometheusMetrics wraps the ResponseWriter, so it is not mounted on the
WebSocket upgrade route.

See Also:

  - internal/api: router setup
  - internal/metrics: the collectors recorded here
*/
package middleware
