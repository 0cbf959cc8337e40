// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/protocol"
)

func init() { //nolint:gochecknoinits // silence logs in tests
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

const (
	testTimeout = 5 * time.Second
	testBase    = 10 * time.Millisecond
	goodSession = "good"
	unreadValue = 7
)

// fakeServer serves /ws and the unread-count endpoint. A nil onConn makes
// every upgrade fail with 503.
type fakeServer struct {
	srv    *httptest.Server
	dials  atomic.Int32
	polls  atomic.Int32
	onConn func(conn *websocket.Conn)
}

func newFakeServer(t *testing.T, onConn func(conn *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{onConn: onConn}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		fs.dials.Add(1)
		if fs.onConn == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.onConn(conn)
	})
	mux.HandleFunc(unreadCountPath, func(w http.ResponseWriter, r *http.Request) {
		fs.polls.Add(1)
		if r.Header.Get(sessionHeader) != goodSession {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"unread_count":7}`))
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) config() Config {
	return Config{
		ServerURL:            "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws",
		APIBaseURL:           fs.srv.URL,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   testBase,
		PollInterval:         time.Hour,
		HeartbeatInterval:    time.Hour,
		TypingInterval:       time.Hour,
	}
}

// readAuth reads the first client frame and returns its session id.
func readAuth(conn *websocket.Conn) (string, bool) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	f, err := protocol.ParseInbound(data)
	if err != nil {
		return "", false
	}
	auth, ok := f.(protocol.Auth)
	return auth.SessionID, ok
}

func writeFrame(conn *websocket.Conn, f protocol.Outbound) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// delayRecorder replaces Controller.sleep.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) sleep(ctx context.Context, delay time.Duration) error {
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
	return ctx.Err()
}

func (d *delayRecorder) snapshot() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

// start runs c until stop is called or the test ends. stop cancels Run and
// returns its error.
func start(t *testing.T, c *Controller) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- c.Run(ctx) }()

	var (
		once sync.Once
		err  error
	)
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-ch:
			case <-time.After(testTimeout):
				t.Error("Run did not return after cancel")
			}
		})
		return err
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}
