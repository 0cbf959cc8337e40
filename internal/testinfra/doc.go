// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

//go:build integration

// Package testinfra starts throwaway Postgres and Redis containers with
// testcontainers-go for integration tests.
//
// Tests using it carry the integration build tag and skip when Docker is
// not available:
//
//	//go:build integration
//
//	func TestPostgresStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    ...
//	    defer testinfra.CleanupContainer(t, ctx, pg.Container)
//	}
//
// Run with:
//
//	go test -tags integration ./...
package testinfra
