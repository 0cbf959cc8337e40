// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	unreadCountPath = "/api/v1/notifications/unread-count"
	sessionHeader   = "X-Session-ID"
)

// Poller pulls the unread notification count over HTTP.
type Poller struct {
	baseURL  string
	sessions SessionSource
	http     *http.Client
}

// NewPoller creates a poller against baseURL. A nil httpClient uses a client
// with a 10 second timeout.
func NewPoller(baseURL string, sessions SessionSource, httpClient *http.Client) *Poller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		http:     httpClient,
	}
}

type unreadCountResponse struct {
	Success     bool  `json:"success"`
	UnreadCount int64 `json:"unread_count"`
}

// UnreadCount fetches the current count for the session's user.
func (p *Poller) UnreadCount(ctx context.Context) (int64, error) {
	sessionID, err := p.sessions.SessionID(ctx)
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+unreadCountPath, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(sessionHeader, sessionID)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("unread count request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("unread count request: unexpected status %d", resp.StatusCode)
	}

	var body unreadCountResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode unread count: %w", err)
	}
	if !body.Success {
		return 0, fmt.Errorf("unread count request: server reported failure")
	}
	return body.UnreadCount, nil
}
