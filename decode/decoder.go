// Package decode turns raw UADP network messages into decoded frames.
//
// The Decoder threads header parsing, chunk reassembly and schema lookup
// into a single pipeline. Decode never fails outward: it returns a fully
// decoded frame, a partial frame, or nil, and the caller inspects the
// result to tell which.
//
// Partial results:
//   - *message.ChunkedMessage: a fragment of a payload still being reassembled
//   - *message.DataFrame: a data message whose meta frame is not cached yet,
//     or whose body failed to decode
//   - *message.Envelope: a message whose body failed to decode
package decode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/uadp/chunk"
	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/metacache"
	"github.com/pithecene-io/uadp/metrics"
	"github.com/pithecene-io/uadp/wire"
)

// Decoder decodes UADP network messages.
// Decode is safe for concurrent use; Run is the single long-lived consumer.
type Decoder struct {
	options message.Options
	chunks  *chunk.Manager
	cache   *metacache.Cache
	logger  log.Sink
	metrics *metrics.Collector

	pollInterval  time.Duration
	chunkIdle     time.Duration
	sweepInterval time.Duration

	mu          sync.RWMutex
	subscribers []func(Event)
	stopped     atomic.Bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithOptions sets the encoding options threaded through meta decoding.
func WithOptions(opts message.Options) Option {
	return func(d *Decoder) { d.options = opts }
}

// WithCache sets the meta cache. The default is an in-memory cache
// without persistence.
func WithCache(c *metacache.Cache) Option {
	return func(d *Decoder) { d.cache = c }
}

// WithChunkManager sets the chunk manager.
func WithChunkManager(m *chunk.Manager) Option {
	return func(d *Decoder) { d.chunks = m }
}

// WithLogger sets the log sink. The default discards everything.
func WithLogger(l log.Sink) Option {
	return func(d *Decoder) { d.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Decoder) { d.metrics = m }
}

// WithPollInterval sets how long Run waits on an empty queue before
// checking for a stop request.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Decoder) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithChunkSweep makes Run drop partial chunk payloads idle for longer
// than idle, checking every interval. A zero idle disables the sweep.
func WithChunkSweep(idle, interval time.Duration) Option {
	return func(d *Decoder) {
		d.chunkIdle = idle
		if interval > 0 {
			d.sweepInterval = interval
		}
	}
}

// New creates a decoder. Components not supplied through options are
// created with the decoder's logger and metrics.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		logger:        log.Nop(),
		pollInterval:  DefaultPollInterval,
		sweepInterval: DefaultChunkSweepInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chunks == nil {
		d.chunks = chunk.NewManager(chunk.WithLogger(d.logger), chunk.WithMetrics(d.metrics))
	}
	if d.cache == nil {
		d.cache = metacache.New(context.Background(),
			metacache.WithLogger(d.logger),
			metacache.WithMetrics(d.metrics),
			metacache.WithOptions(d.options),
		)
	}
	return d
}

// Cache returns the meta cache.
func (d *Decoder) Cache() *metacache.Cache {
	return d.cache
}

// Chunks returns the chunk manager.
func (d *Decoder) Chunks() *chunk.Manager {
	return d.chunks
}

// Decode decodes one network message. It returns nil for empty input,
// an unparsable header, an unsupported protocol version or message type,
// a malformed chunk envelope and a malformed meta frame.
func (d *Decoder) Decode(payload []byte) message.NetworkMessage {
	d.metrics.IncMessageReceived()
	if len(payload) == 0 {
		d.metrics.IncDecodeFailure()
		d.logger.Warn("empty network message", nil)
		return nil
	}

	h, err := message.DecodeNetworkMessageHeader(wire.NewDecoder(payload))
	if err != nil {
		d.fail("failed to decode network message header", err, nil)
		return nil
	}
	if err := h.CheckVersion(); err != nil {
		d.metrics.IncUnsupported()
		d.logger.Warn("dropping network message", map[string]any{"error": err.Error()})
		return nil
	}

	raw := h.RawPayload
	h.RawPayload = nil

	var m message.NetworkMessage
	if h.IsChunked() {
		m = d.decodeChunk(h, raw)
	} else {
		m = d.dispatch(h, wire.NewDecoder(raw), nil)
	}
	if m != nil {
		d.metrics.IncDecoded(Kind(m))
	}
	return m
}

func (d *Decoder) decodeChunk(h *message.NetworkMessageHeader, raw []byte) message.NetworkMessage {
	c, err := message.DecodeChunkedMessage(wire.NewDecoder(raw))
	if err != nil {
		d.fail("failed to decode chunk envelope", err, map[string]any{"publisher": h.PublisherID})
		return nil
	}
	c.NetworkHeader = h

	complete, err := d.chunks.Store(c)
	if err != nil {
		// The fragment is dropped and the key's store is left as it was.
		// The manager logs size mismatches itself.
		if !errors.Is(err, chunk.ErrTotalSizeMismatch) {
			d.logger.Warn("chunk rejected", map[string]any{"key": chunk.KeyOf(c).String(), "error": err.Error()})
		}
		return &message.Envelope{NetworkHeader: h}
	}
	if !complete {
		return c
	}

	body, err := d.chunks.Payload(c)
	if err != nil {
		d.fail("failed to take chunk payload", err, map[string]any{"key": chunk.KeyOf(c).String()})
		return &message.Envelope{NetworkHeader: h}
	}
	writerID := c.WriterID
	return d.dispatch(h, wire.NewDecoder(body), &writerID)
}

// dispatch decodes a message body by network message type. chunkWriter is
// set for reassembled chunk payloads.
func (d *Decoder) dispatch(h *message.NetworkMessageHeader, dec *wire.Decoder, chunkWriter *uint16) message.NetworkMessage {
	switch h.MessageType() {
	case message.MessageTypeDiscoveryResponse:
		return d.decodeMeta(h, dec, chunkWriter != nil)
	case message.MessageTypeDataSet:
		return d.decodeData(h, dec, chunkWriter)
	default:
		d.metrics.IncUnsupported()
		d.logger.Warn("unsupported network message type", map[string]any{
			"type":      h.MessageType().String(),
			"publisher": h.PublisherID,
		})
		return nil
	}
}

func (d *Decoder) decodeMeta(h *message.NetworkMessageHeader, dec *wire.Decoder, reassembled bool) message.NetworkMessage {
	m, err := message.DecodeMetaFrame(dec, d.options)
	if err != nil {
		d.fail("failed to decode meta frame", err, map[string]any{"publisher": h.PublisherID})
		return nil
	}
	if reassembled {
		// The cached frame reads as if it had been sent in one piece.
		h = h.Clone()
		h.SetChunked(false)
	}
	m.NetworkHeader = h
	d.cache.Put(m)
	return m
}

func (d *Decoder) decodeData(h *message.NetworkMessageHeader, dec *wire.Decoder, chunkWriter *uint16) message.NetworkMessage {
	var (
		hdr *message.DataFrame
		err error
	)
	if chunkWriter != nil {
		hdr, err = message.DecodeChunkDataFrameHeader(dec, h, *chunkWriter)
	} else {
		hdr, err = message.DecodeDataFrameHeader(dec, h)
	}
	if err != nil {
		d.fail("failed to decode dataset message header", err, map[string]any{"publisher": h.PublisherID})
		return &message.DataFrame{Envelope: message.Envelope{NetworkHeader: h}}
	}

	typ := hdr.MessageType()
	if typ == message.DataSetKeepAlive {
		return message.DecodeKeepAliveFrame(hdr)
	}
	if typ != message.DataSetKeyFrame && typ != message.DataSetDeltaFrame {
		d.metrics.IncUnsupported()
		d.logger.Warn("unsupported dataset message type", map[string]any{
			"type":      typ.String(),
			"publisher": h.PublisherID,
			"writer":    hdr.WriterID(),
		})
		return hdr
	}

	meta, ok := d.cache.Get(h.PublisherID, hdr.WriterID(), hdr.ConfigurationVersion)
	if !ok {
		d.metrics.IncSchemaMiss()
		d.logger.Debug("no meta frame for data frame", map[string]any{
			"publisher": h.PublisherID,
			"writer":    hdr.WriterID(),
			"version":   hdr.ConfigurationVersion.String(),
		})
		return hdr
	}

	var frame message.NetworkMessage
	if typ == message.DataSetKeyFrame {
		frame, err = message.DecodeKeyFrame(dec, hdr, meta)
	} else {
		frame, err = message.DecodeDeltaFrame(dec, hdr, meta)
	}
	if err != nil {
		d.fail(fmt.Sprintf("failed to decode %s frame", typ), err, map[string]any{
			"publisher": h.PublisherID,
			"writer":    hdr.WriterID(),
			"version":   hdr.ConfigurationVersion.String(),
		})
		return hdr
	}
	return frame
}

func (d *Decoder) fail(msg string, err error, fields map[string]any) {
	if wire.IsUnsupported(err) {
		d.metrics.IncUnsupported()
	} else {
		d.metrics.IncDecodeFailure()
	}
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["error"] = err.Error()
	d.logger.Warn(msg, fields)
}

// Kind names a decoded message for metrics and logs: "meta", "key",
// "delta", "keepalive", "dataframe", "chunk" or "envelope".
func Kind(m message.NetworkMessage) string {
	switch m.(type) {
	case *message.MetaFrame:
		return "meta"
	case *message.KeyFrame:
		return "key"
	case *message.DeltaFrame:
		return "delta"
	case *message.KeepAliveFrame:
		return "keepalive"
	case *message.DataFrame:
		return "dataframe"
	case *message.ChunkedMessage:
		return "chunk"
	default:
		return "envelope"
	}
}
