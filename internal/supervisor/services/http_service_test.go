// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

const loopback = "127.0.0.1:0"

// fakeHTTPServer blocks in Serve until Shutdown and records the call order.
type fakeHTTPServer struct {
	serveErr    error
	shutdownErr error

	served   chan net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	shutdown atomic.Int32
	events   *eventLog
}

func newFakeHTTPServer(events *eventLog) *fakeHTTPServer {
	return &fakeHTTPServer{
		served: make(chan net.Listener, 1),
		stopCh: make(chan struct{}),
		events: events,
	}
}

func (f *fakeHTTPServer) Serve(l net.Listener) error {
	f.served <- l
	if f.serveErr != nil {
		_ = l.Close()
		return f.serveErr
	}
	<-f.stopCh
	_ = l.Close()
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdown.Add(1)
	f.events.add("shutdown")
	f.stopOnce.Do(func() { close(f.stopCh) })
	return f.shutdownErr
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *eventLog) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ HTTPServer     = (*http.Server)(nil)
)

// serveInBackground runs svc and waits until the fake server is serving.
func serveInBackground(t *testing.T, svc *HTTPServerService, server *fakeHTTPServer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-server.served:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("server did not start serving")
	}
	return cancel, errCh
}

func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestNewHTTPServerService(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"zero selects default", 0, defaultShutdownTimeout},
		{"negative selects default", -5 * time.Second, defaultShutdownTimeout},
		{"explicit", 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHTTPServerService(newFakeHTTPServer(&eventLog{}), ":8080", tt.in)
			if svc.shutdownTimeout != tt.want {
				t.Errorf("shutdownTimeout = %v, want %v", svc.shutdownTimeout, tt.want)
			}
			if svc.addr != ":8080" || svc.listen == nil || svc.String() != "http-server" {
				t.Errorf("unexpected service: addr %q, name %q", svc.addr, svc.String())
			}
		})
	}
}

func TestHTTPServerService_DrainsBeforeShutdown(t *testing.T) {
	events := &eventLog{}
	server := newFakeHTTPServer(events)
	svc := NewHTTPServerService(server, loopback, time.Second,
		WithDrainHook(func() { events.add("drain-readiness") }),
		WithDrainHook(func() { events.add("drain-ingress") }),
	)

	cancel, errCh := serveInBackground(t, svc, server)
	cancel()

	if err := waitServe(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	got := events.snapshot()
	want := []string{"drain-readiness", "drain-ingress", "shutdown"}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events = %v, want %v", got, want)
			break
		}
	}
}

func TestHTTPServerService_ListenFailures(t *testing.T) {
	t.Run("listen func error", func(t *testing.T) {
		refused := errors.New("permission denied")
		server := newFakeHTTPServer(&eventLog{})
		svc := NewHTTPServerService(server, ":80", time.Second,
			WithListenFunc(func(string, string) (net.Listener, error) { return nil, refused }))

		if err := svc.Serve(context.Background()); !errors.Is(err, refused) {
			t.Errorf("Serve() = %v, want %v", err, refused)
		}
		if len(server.served) != 0 {
			t.Error("Serve must not reach the server without a listener")
		}
	})

	t.Run("port already bound", func(t *testing.T) {
		taken, err := net.Listen("tcp", loopback)
		if err != nil {
			t.Fatal(err)
		}
		defer taken.Close()

		svc := NewHTTPServerService(newFakeHTTPServer(&eventLog{}), taken.Addr().String(), time.Second)
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("Serve() should fail on a bound port")
		}
	})
}

func TestHTTPServerService_ServeErrors(t *testing.T) {
	t.Run("serve failure is returned for restart", func(t *testing.T) {
		boom := errors.New("accept: too many open files")
		server := newFakeHTTPServer(&eventLog{})
		server.serveErr = boom
		svc := NewHTTPServerService(server, loopback, time.Second)

		err := svc.Serve(context.Background())
		if !errors.Is(err, boom) {
			t.Errorf("Serve() = %v, want %v", err, boom)
		}
		if errors.Is(err, suture.ErrDoNotRestart) {
			t.Error("a transient serve failure should be restartable")
		}
	})

	t.Run("external close is not restarted", func(t *testing.T) {
		server := newFakeHTTPServer(&eventLog{})
		server.serveErr = http.ErrServerClosed
		svc := NewHTTPServerService(server, loopback, time.Second)

		if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() = %v, want suture.ErrDoNotRestart", err)
		}
	})

	t.Run("shutdown failure is returned", func(t *testing.T) {
		stuck := errors.New("context deadline exceeded")
		server := newFakeHTTPServer(&eventLog{})
		server.shutdownErr = stuck
		svc := NewHTTPServerService(server, loopback, time.Second)

		cancel, errCh := serveInBackground(t, svc, server)
		cancel()
		if err := waitServe(t, errCh); !errors.Is(err, stuck) {
			t.Errorf("Serve() = %v, want %v", err, stuck)
		}
	})
}

func TestHTTPServerService_UnderSupervisor(t *testing.T) {
	server := newFakeHTTPServer(&eventLog{})
	svc := NewHTTPServerService(server, loopback, time.Second)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          2 * time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	select {
	case <-server.served:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}

	cancel()
	<-errCh

	if server.shutdown.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", server.shutdown.Load())
	}
}

func TestHTTPServerService_RealServer(t *testing.T) {
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		ReadHeaderTimeout: time.Second,
	}

	bound := make(chan string, 1)
	svc := NewHTTPServerService(server, loopback, time.Second,
		WithListenFunc(func(network, addr string) (net.Listener, error) {
			ln, err := net.Listen(network, addr)
			if err == nil {
				bound <- ln.Addr().String()
			}
			return ln, err
		}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	var addr string
	select {
	case addr = <-bound:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("listener not bound")
	}

	resp, err := http.Get("http://" + addr + "/readyz")
	if err != nil {
		cancel()
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	cancel()
	if err := waitServe(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}
