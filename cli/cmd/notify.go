package cmd

import (
	"context"
	"time"

	"github.com/pithecene-io/uadp/adapter"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/metrics"
)

// defaultNotifyBuffer is the number of events waiting for the adapter
// before new ones are dropped.
const defaultNotifyBuffer = 256

// defaultDrainTimeout bounds how long Close waits for buffered events.
const defaultDrainTimeout = 10 * time.Second

// notifier publishes decoded events from its own goroutine so a slow
// adapter never stalls decoding.
type notifier struct {
	adapter adapter.Adapter
	events  chan *adapter.DecodedEvent
	logger  log.Sink
	metrics *metrics.Collector
	drain   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newNotifier(a adapter.Adapter, buffer int, logger log.Sink, m *metrics.Collector) *notifier {
	if buffer <= 0 {
		buffer = defaultNotifyBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &notifier{
		adapter: a,
		events:  make(chan *adapter.DecodedEvent, buffer),
		logger:  logger,
		metrics: m,
		drain:   defaultDrainTimeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// Notify queues ev for publishing. It never blocks; when the buffer is
// full the event is dropped and counted as failed.
func (n *notifier) Notify(ev *adapter.DecodedEvent) {
	select {
	case n.events <- ev:
	default:
		n.metrics.IncNotificationFailed()
		n.logger.Warn("notification buffer full, dropping event", map[string]any{
			"kind":      ev.Kind,
			"publisher": ev.PublisherID,
		})
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for ev := range n.events {
		if err := n.adapter.Publish(n.ctx, ev); err != nil {
			n.metrics.IncNotificationFailed()
			n.logger.Error("notification failed", map[string]any{
				"kind":      ev.Kind,
				"publisher": ev.PublisherID,
				"error":     err.Error(),
			})
			continue
		}
		n.metrics.IncNotificationPublished()
	}
}

// Close publishes what is buffered, giving up after the drain timeout,
// and closes the adapter. Notify must not be called after Close.
func (n *notifier) Close() error {
	close(n.events)
	select {
	case <-n.done:
	case <-time.After(n.drain):
		n.logger.Warn("notification drain timed out", map[string]any{"pending": len(n.events)})
		n.cancel()
		<-n.done
	}
	n.cancel()
	return n.adapter.Close()
}
