// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package store

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/idem-realtime/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func TestMemoryStore_Participants(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Join(7, 1, 2, 3)
	m.Join(8, 1, 4)
	m.Leave(7, 3)

	tests := []struct {
		name      string
		conv      int64
		excluding int64
		want      []int64
	}{
		{"excludes sender", 7, 1, []int64{2}},
		{"excludes left members", 7, 2, []int64{1}},
		{"other conversation", 8, 4, []int64{1}},
		{"unknown conversation", 99, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Participants(ctx, tt.conv, tt.excluding)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Participants(%d, %d) = %v, want %v", tt.conv, tt.excluding, got, tt.want)
			}
		})
	}
}

func TestMemoryStore_UnreadAndLastSeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.SetUnread(42, 3)

	if n, _ := m.UnreadNotifications(ctx, 42); n != 3 {
		t.Errorf("UnreadNotifications(42) = %d, want 3", n)
	}
	if n, _ := m.UnreadNotifications(ctx, 1); n != 0 {
		t.Errorf("UnreadNotifications(1) = %d, want 0", n)
	}

	at := time.Now()
	if err := m.RecordPresence(ctx, 42, false, at); err != nil {
		t.Fatal(err)
	}
	if got, ok, err := m.LastSeen(ctx, 42); err != nil || !ok || !got.Equal(at) {
		t.Errorf("LastSeen(42) = %v, %v, %v", got, ok, err)
	}
	if _, ok, _ := m.LastSeen(ctx, 1); ok {
		t.Error("LastSeen(1) should report nothing recorded")
	}
}

func TestBreakerStore_LastSeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	b := NewBreakerStore(m, BreakerSettings{Name: "test-last-seen", MaxRequests: 1, Timeout: time.Minute})

	if _, ok, err := b.LastSeen(ctx, 5); err != nil || ok {
		t.Errorf("LastSeen(5) ok = %v, err = %v, want false, nil", ok, err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := b.RecordPresence(ctx, 5, false, at); err != nil {
		t.Fatal(err)
	}
	got, ok, err := b.LastSeen(ctx, 5)
	if err != nil || !ok || !got.Equal(at) {
		t.Errorf("LastSeen(5) = %v, %v, %v, want %v", got, ok, err, at)
	}
}

// flakyBackend fails every call while failing is set.
type flakyBackend struct {
	*MemoryStore
	mu      sync.Mutex
	failing bool
	calls   int
}

func (f *flakyBackend) Participants(ctx context.Context, conv, excl int64) ([]int64, error) {
	f.mu.Lock()
	f.calls++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return nil, errors.New("connection reset")
	}
	return f.MemoryStore.Participants(ctx, conv, excl)
}

func TestBreakerStore(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryStore: NewMemoryStore(), failing: true}
	backend.Join(7, 1, 2)

	b := NewBreakerStore(backend, BreakerSettings{
		Name:         "test-postgres",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      50 * time.Millisecond,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	for i := 0; i < 3; i++ {
		if _, err := b.Participants(ctx, 7, 1); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}

	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	_, err := b.Participants(ctx, 7, 1)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("open breaker should not reach backend: calls = %d", backend.calls)
	}

	backend.mu.Lock()
	backend.failing = false
	backend.mu.Unlock()
	time.Sleep(80 * time.Millisecond)

	ids, err := b.Participants(ctx, 7, 1)
	if err != nil {
		t.Fatalf("half-open trial call should succeed: %v", err)
	}
	if !slices.Equal(ids, []int64{2}) {
		t.Errorf("Participants() = %v, want [2]", ids)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed after a successful trial call", b.State())
	}
}

func TestBreakerStore_CanceledContextDoesNotTrip(t *testing.T) {
	backend := &canceledBackend{MemoryStore: NewMemoryStore()}
	b := NewBreakerStore(backend, BreakerSettings{
		Name: "test-cancel", MaxRequests: 1, Timeout: time.Minute, MinRequests: 1, FailureRatio: 0.1,
	})
	for i := 0; i < 5; i++ {
		_, _ = b.UnreadNotifications(context.Background(), 1)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

type canceledBackend struct{ *MemoryStore }

func (canceledBackend) UnreadNotifications(context.Context, int64) (int64, error) {
	return 0, context.Canceled
}

type recordingRecorder struct {
	mu      sync.Mutex
	changes []presenceChange
	err     error
}

func (r *recordingRecorder) RecordPresence(_ context.Context, userID int64, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, presenceChange{userID: userID, online: online, at: at})
	return r.err
}

func (r *recordingRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func TestMultiRecorder(t *testing.T) {
	a := &recordingRecorder{}
	b := &recordingRecorder{err: errors.New("redis down")}
	c := &recordingRecorder{}

	err := MultiRecorder{a, b, c}.RecordPresence(context.Background(), 1, true, time.Now())
	if err == nil {
		t.Error("expected joined error")
	}
	if a.len() != 1 || c.len() != 1 {
		t.Error("every recorder should be called even when one fails")
	}
}

func TestAsyncRecorder(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAsyncRecorder(rec, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.Record(1, true, time.Now())
	a.Record(1, false, time.Now())

	deadline := time.Now().Add(time.Second)
	for rec.len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.len() != 2 {
		t.Fatalf("recorded %d changes, want 2", rec.len())
	}
	if rec.changes[0].online != true || rec.changes[1].online != false {
		t.Error("changes should be recorded in order")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestAsyncRecorder_DropsWhenFull(t *testing.T) {
	rec := &recordingRecorder{}
	a := NewAsyncRecorder(rec, 2, time.Second)

	// Run is not started, so the queue fills.
	for i := 0; i < 5; i++ {
		a.Record(int64(i), true, time.Now())
	}
	if len(a.queue) != 2 {
		t.Errorf("queue length = %d, want 2", len(a.queue))
	}
}
