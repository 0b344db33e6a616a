package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/uadp/adapter"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/metrics"
)

type recordingAdapter struct {
	mu        sync.Mutex
	published []*adapter.DecodedEvent
	err       error
	closed    bool

	// started receives once per Publish call when set; Publish then
	// waits on release.
	started chan struct{}
	release chan struct{}
}

func (a *recordingAdapter) Publish(ctx context.Context, ev *adapter.DecodedEvent) error {
	if a.started != nil {
		a.started <- struct{}{}
		select {
		case <-a.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	a.published = append(a.published, ev)
	a.mu.Unlock()
	return nil
}

func (a *recordingAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

func TestNotifier_DrainsOnClose(t *testing.T) {
	a := &recordingAdapter{}
	m := metrics.NewCollector("file", "", "test")
	n := newNotifier(a, 16, log.Nop(), m)

	for i := range 5 {
		n.Notify(&adapter.DecodedEvent{Kind: "delta", WriterID: uint16(i)})
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(a.published) != 5 {
		t.Fatalf("published = %d, want 5", len(a.published))
	}
	for i, ev := range a.published {
		if ev.WriterID != uint16(i) {
			t.Errorf("event %d writer = %d, want %d", i, ev.WriterID, i)
		}
	}
	if !a.closed {
		t.Error("adapter not closed")
	}
	if s := m.Snapshot(); s.NotificationsPublished != 5 || s.NotificationsFailed != 0 {
		t.Errorf("published/failed = %d/%d, want 5/0", s.NotificationsPublished, s.NotificationsFailed)
	}
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	a := &recordingAdapter{started: make(chan struct{}, 4), release: make(chan struct{})}
	m := metrics.NewCollector("file", "", "test")
	n := newNotifier(a, 1, log.Nop(), m)

	n.Notify(&adapter.DecodedEvent{Kind: "meta"})
	select {
	case <-a.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first publish never started")
	}

	// One event fits in the buffer while the first is in flight.
	n.Notify(&adapter.DecodedEvent{Kind: "key"})
	n.Notify(&adapter.DecodedEvent{Kind: "delta"})

	if s := m.Snapshot(); s.NotificationsFailed != 1 {
		t.Errorf("failed = %d, want 1", s.NotificationsFailed)
	}

	close(a.release)
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(a.published) != 2 {
		t.Fatalf("published = %d, want 2", len(a.published))
	}
	if a.published[0].Kind != "meta" || a.published[1].Kind != "key" {
		t.Errorf("published kinds = %s, %s; want meta, key", a.published[0].Kind, a.published[1].Kind)
	}
}

func TestNotifier_CountsPublishFailures(t *testing.T) {
	a := &recordingAdapter{err: errors.New("downstream unavailable")}
	m := metrics.NewCollector("file", "", "test")
	n := newNotifier(a, 0, log.Nop(), m)

	n.Notify(&adapter.DecodedEvent{Kind: "delta"})
	n.Notify(&adapter.DecodedEvent{Kind: "delta"})
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if s := m.Snapshot(); s.NotificationsFailed != 2 || s.NotificationsPublished != 0 {
		t.Errorf("published/failed = %d/%d, want 0/2", s.NotificationsPublished, s.NotificationsFailed)
	}
}

func TestNotifier_DrainTimeoutCancelsPublish(t *testing.T) {
	a := &recordingAdapter{started: make(chan struct{}, 4), release: make(chan struct{})}
	m := metrics.NewCollector("file", "", "test")
	n := newNotifier(a, 4, log.Nop(), m)
	n.drain = 50 * time.Millisecond

	n.Notify(&adapter.DecodedEvent{Kind: "delta"})
	<-a.started

	done := make(chan struct{})
	go func() {
		_ = n.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the drain timeout")
	}
	if !a.closed {
		t.Error("adapter not closed")
	}
	if s := m.Snapshot(); s.NotificationsFailed != 1 {
		t.Errorf("failed = %d, want 1", s.NotificationsFailed)
	}
}
