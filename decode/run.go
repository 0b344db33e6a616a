package decode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/transport"
)

// DefaultPollInterval is how long Run waits on an empty queue before
// checking for a stop request.
const DefaultPollInterval = 10 * time.Millisecond

// DefaultChunkSweepInterval is how often Run sweeps idle chunk payloads
// when a chunk idle timeout is configured.
const DefaultChunkSweepInterval = time.Second

// ErrNoQueue is returned by Run when no queue is supplied.
var ErrNoQueue = errors.New("decoder has no input queue")

// Event is emitted to subscribers for every message Run decodes, fully or
// partially.
type Event struct {
	Message message.NetworkMessage
	Topic   string
}

// Subscribe registers fn to receive every Event emitted by Run.
// Subscribers are called synchronously on the Run goroutine.
func (d *Decoder) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.subscribers = append(d.subscribers, fn)
	d.mu.Unlock()
}

// Stop asks Run to return. The request is observed between items; an
// in-flight decode always completes. A stopped decoder cannot be run again.
func (d *Decoder) Stop() {
	d.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (d *Decoder) Stopped() bool {
	return d.stopped.Load()
}

// Run consumes queue until Stop is called or ctx is done. A failure to
// decode one item, including a panic, is logged and never ends the loop.
func (d *Decoder) Run(ctx context.Context, queue *transport.Queue) error {
	if queue == nil {
		return ErrNoQueue
	}

	d.logger.Info("decoder started", map[string]any{
		"poll_interval": d.pollInterval.String(),
		"chunk_idle":    d.chunkIdle.String(),
	})
	defer d.logger.Info("decoder stopped", nil)

	lastSweep := time.Now()
	for {
		if d.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		if d.chunkIdle > 0 && time.Since(lastSweep) >= d.sweepInterval {
			d.chunks.Sweep(d.chunkIdle)
			lastSweep = time.Now()
		}

		item, ok := queue.Receive(ctx, d.pollInterval)
		if !ok {
			continue
		}
		d.handle(item)
	}
}

func (d *Decoder) handle(item transport.Item) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncDecodeFailure()
			d.logger.Error("panic while decoding message", map[string]any{
				"topic": item.Topic,
				"size":  len(item.Payload),
				"panic": fmt.Sprint(r),
			})
		}
	}()

	m := d.Decode(item.Payload)
	if m == nil {
		d.logger.Debug("message produced no result", map[string]any{"topic": item.Topic, "size": len(item.Payload)})
		return
	}
	d.emit(Event{Message: m, Topic: item.Topic})
}

func (d *Decoder) emit(e Event) {
	d.mu.RLock()
	subs := d.subscribers
	d.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
