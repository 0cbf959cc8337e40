// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/idem-realtime/internal/logging"
	"github.com/tomtom215/idem-realtime/internal/protocol"
	"github.com/tomtom215/idem-realtime/internal/session"
	"github.com/tomtom215/idem-realtime/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

const frameTimeout = 2 * time.Second

// sessions maps session ids to user ids. "sess-<n>" is user n.
func sessions(ids ...int64) session.Validator {
	known := make(map[string]int64, len(ids))
	for _, id := range ids {
		known[sessionFor(id)] = id
	}
	return session.ValidatorFunc(func(_ context.Context, sessionID string) (int64, bool) {
		id, ok := known[sessionID]
		return id, ok
	})
}

func sessionFor(userID int64) string {
	return "sess-" + strconv.FormatInt(userID, 10)
}

// testEnv is a running hub behind an httptest server.
type testEnv struct {
	hub    *Hub
	server *httptest.Server
	store  *store.MemoryStore
	cancel context.CancelFunc

	// finished closes when RunWithContext returns; runErr is its result.
	finished chan struct{}
	runErr   error
}

func newTestEnv(t *testing.T, opts Options, users ...int64) *testEnv {
	t.Helper()

	mem := store.NewMemoryStore()
	if opts.Validator == nil {
		opts.Validator = sessions(users...)
	}
	if opts.Conversations == nil {
		opts.Conversations = mem
	}
	if opts.Notifications == nil {
		opts.Notifications = mem
	}

	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{hub: hub, store: mem, cancel: cancel, finished: make(chan struct{})}
	go func() {
		env.runErr = hub.RunWithContext(ctx)
		close(env.finished)
	}()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		if !hub.Attach(client) {
			_ = conn.Close()
			return
		}
		client.Start()
	}))

	env.server = server
	t.Cleanup(env.stop)
	return env
}

func (e *testEnv) stop() {
	e.cancel()
	select {
	case <-e.finished:
	case <-time.After(frameTimeout):
	}
	e.server.Close()
}

// testConn is a dialed connection whose frames are read by a background
// goroutine, so waiting for absence never corrupts the gorilla reader.
type testConn struct {
	t        *testing.T
	conn     *websocket.Conn
	frames   chan protocol.Outbound
	closeErr chan error
}

func (e *testEnv) dial(t *testing.T) *testConn {
	t.Helper()
	return e.dialWith(t, nil)
}

// dialWith runs setup on the raw connection before the reader starts.
func (e *testEnv) dialWith(t *testing.T, setup func(*websocket.Conn)) *testConn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}

	if setup != nil {
		setup(conn)
	}

	tc := &testConn{
		t:        t,
		conn:     conn,
		frames:   make(chan protocol.Outbound, 64),
		closeErr: make(chan error, 1),
	}
	go tc.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return tc
}

func (c *testConn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeErr <- err
			return
		}
		frame, err := protocol.ParseOutbound(data)
		if err != nil {
			continue
		}
		c.frames <- frame
	}
}

func (c *testConn) sendRaw(data string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		c.t.Fatalf("write frame: %v", err)
	}
}

func (c *testConn) send(f protocol.Frame) {
	c.t.Helper()
	data, err := protocol.Encode(f)
	if err != nil {
		c.t.Fatalf("encode frame: %v", err)
	}
	c.sendRaw(string(data))
}

// next returns the next frame of the given type, skipping others.
func (c *testConn) next(kind protocol.Type) protocol.Outbound {
	c.t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", kind)
			}
			if f.Kind() == kind {
				return f
			}
		case <-deadline:
			c.t.Fatalf("timeout waiting for %s frame", kind)
			return nil
		}
	}
}

// any returns the next frame of any type.
func (c *testConn) any() protocol.Outbound {
	c.t.Helper()
	select {
	case f, ok := <-c.frames:
		if !ok {
			c.t.Fatal("connection closed while waiting for a frame")
		}
		return f
	case <-time.After(frameTimeout):
		c.t.Fatal("timeout waiting for a frame")
		return nil
	}
}

// none fails if a frame of the given type arrives within d.
func (c *testConn) none(kind protocol.Type, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return
			}
			if f.Kind() == kind {
				c.t.Fatalf("unexpected %s frame: %+v", kind, f)
			}
		case <-deadline:
			return
		}
	}
}

// closed waits for the server to close the connection and returns the error
// the reader saw.
func (c *testConn) closed() error {
	c.t.Helper()
	select {
	case err := <-c.closeErr:
		return err
	case <-time.After(frameTimeout):
		c.t.Fatal("timeout waiting for connection close")
		return nil
	}
}

// login authenticates as userID and consumes auth_success.
func (c *testConn) login(userID int64) {
	c.t.Helper()
	c.send(protocol.Auth{SessionID: sessionFor(userID)})
	f := c.next(protocol.TypeAuthSuccess).(protocol.AuthSuccess)
	if int64(f.UserID) != userID {
		c.t.Fatalf("auth_success user_id = %d, want %d", f.UserID, userID)
	}
}

// waitFor polls cond until it holds or the frame timeout passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
