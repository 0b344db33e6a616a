package redis

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/uadp/transport"
)

// publishUntilDelivered retries until the subscriber is registered,
// since Run subscribes asynchronously.
func publishUntilDelivered(t *testing.T, mr *miniredis.Miniredis, channel string, payload []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if mr.Publish(channel, string(payload)) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no subscriber on %s", channel)
}

func startSubscriber(t *testing.T, cfg Config, q *transport.Queue) {
	t.Helper()
	s, err := New(cfg, q, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = s.Close()
	})
}

func TestSubscriber_Channel(t *testing.T) {
	mr := miniredis.RunT(t)
	q := transport.NewQueue(8)
	startSubscriber(t, Config{URL: "redis://" + mr.Addr(), Channels: []string{"uadp/substation"}}, q)

	payload := []byte{0x91, 0x00, 0xff, 0x00, 0x10}
	publishUntilDelivered(t, mr, "uadp/substation", payload)

	item, ok := q.Receive(t.Context(), 5*time.Second)
	if !ok {
		t.Fatal("timed out waiting for item")
	}
	if item.Topic != "uadp/substation" {
		t.Errorf("Topic = %q, want %q", item.Topic, "uadp/substation")
	}
	if !bytes.Equal(item.Payload, payload) {
		t.Errorf("Payload = %x, want %x", item.Payload, payload)
	}
}

func TestSubscriber_Pattern(t *testing.T) {
	mr := miniredis.RunT(t)
	q := transport.NewQueue(8)
	startSubscriber(t, Config{URL: "redis://" + mr.Addr(), Patterns: []string{"uadp/*"}}, q)

	publishUntilDelivered(t, mr, "uadp/bay-2", []byte{1})

	item, ok := q.Receive(t.Context(), 5*time.Second)
	if !ok {
		t.Fatal("timed out waiting for item")
	}
	if item.Topic != "uadp/bay-2" {
		t.Errorf("Topic = %q, want %q", item.Topic, "uadp/bay-2")
	}
}

func TestNew_Validation(t *testing.T) {
	q := transport.NewQueue(1)
	cases := []struct {
		name string
		cfg  Config
		q    *transport.Queue
	}{
		{"empty url", Config{Channels: []string{"a"}}, q},
		{"invalid url", Config{URL: "not-a-url", Channels: []string{"a"}}, q},
		{"no channels", Config{URL: "redis://localhost:6379"}, q},
		{"nil queue", Config{URL: "redis://localhost:6379", Channels: []string{"a"}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, tc.q, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
