// Package metrics provides decode pipeline counters.
//
// The Collector accumulates counters for the lifetime of a decoder. It is a
// leaf package with no internal dependencies, so message kinds are keyed by
// plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Decode
	MessagesReceived    int64
	DecodedByKind       map[string]int64
	DecodeFailures      int64
	UnsupportedMessages int64
	SchemaMisses        int64

	// Chunk reassembly
	ChunksStored    int64
	ChunksCompleted int64
	ChunksRejected  int64
	ChunksSwept     int64

	// Meta cache
	MetaInserted        int64
	MetaEvicted         int64
	MetaPersistFailures int64

	// Notifications
	NotificationsPublished int64
	NotificationsFailed    int64

	// Dimensions (informational, set at construction)
	Transport      string
	StorageBackend string
	Adapter        string
}

// Collector accumulates decode metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	messagesReceived    int64
	decodedByKind       map[string]int64
	decodeFailures      int64
	unsupportedMessages int64
	schemaMisses        int64

	chunksStored    int64
	chunksCompleted int64
	chunksRejected  int64
	chunksSwept     int64

	metaInserted        int64
	metaEvicted         int64
	metaPersistFailures int64

	notificationsPublished int64
	notificationsFailed    int64

	transport      string
	storageBackend string
	adapter        string
}

// NewCollector creates a Collector with dimension labels. Empty labels
// mean the component is not configured.
func NewCollector(transport, storageBackend, adapter string) *Collector {
	return &Collector{
		decodedByKind:  make(map[string]int64),
		transport:      transport,
		storageBackend: storageBackend,
		adapter:        adapter,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Decode ---

// IncMessageReceived records a payload handed to the decoder.
func (c *Collector) IncMessageReceived() {
	if c == nil {
		return
	}
	c.add(&c.messagesReceived, 1)
}

// IncDecoded records a decoded message of the given kind
// (e.g. "meta", "key", "delta", "keepalive", "chunk", "dataframe").
func (c *Collector) IncDecoded(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodedByKind[kind]++
	c.mu.Unlock()
}

// IncDecodeFailure records a payload that produced no message.
func (c *Collector) IncDecodeFailure() {
	if c == nil {
		return
	}
	c.add(&c.decodeFailures, 1)
}

// IncUnsupported records a dropped message with an unsupported protocol
// version or message type.
func (c *Collector) IncUnsupported() {
	if c == nil {
		return
	}
	c.add(&c.unsupportedMessages, 1)
}

// IncSchemaMiss records a data frame whose meta frame was not cached.
func (c *Collector) IncSchemaMiss() {
	if c == nil {
		return
	}
	c.add(&c.schemaMisses, 1)
}

// --- Chunk reassembly ---

// IncChunkStored records an accepted chunk fragment.
func (c *Collector) IncChunkStored() {
	if c == nil {
		return
	}
	c.add(&c.chunksStored, 1)
}

// IncChunkCompleted records a fully reassembled chunk payload.
func (c *Collector) IncChunkCompleted() {
	if c == nil {
		return
	}
	c.add(&c.chunksCompleted, 1)
}

// IncChunkRejected records a fragment rejected for size mismatch or overlap.
func (c *Collector) IncChunkRejected() {
	if c == nil {
		return
	}
	c.add(&c.chunksRejected, 1)
}

// AddChunksSwept records partial payloads dropped by the idle sweep.
func (c *Collector) AddChunksSwept(n int) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.chunksSwept, int64(n))
}

// --- Meta cache ---

// IncMetaInserted records a new meta frame entering the cache.
func (c *Collector) IncMetaInserted() {
	if c == nil {
		return
	}
	c.add(&c.metaInserted, 1)
}

// IncMetaEvicted records a meta frame evicted by the capacity bound.
func (c *Collector) IncMetaEvicted() {
	if c == nil {
		return
	}
	c.add(&c.metaEvicted, 1)
}

// IncMetaPersistFailure records a failed write or delete of a persisted
// meta frame.
func (c *Collector) IncMetaPersistFailure() {
	if c == nil {
		return
	}
	c.add(&c.metaPersistFailures, 1)
}

// --- Notifications ---

// IncNotificationPublished records a notification delivered by an adapter.
func (c *Collector) IncNotificationPublished() {
	if c == nil {
		return
	}
	c.add(&c.notificationsPublished, 1)
}

// IncNotificationFailed records a notification an adapter gave up on.
func (c *Collector) IncNotificationFailed() {
	if c == nil {
		return
	}
	c.add(&c.notificationsFailed, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.decodedByKind))
	for k, v := range c.decodedByKind {
		byKind[k] = v
	}

	return Snapshot{
		MessagesReceived:    c.messagesReceived,
		DecodedByKind:       byKind,
		DecodeFailures:      c.decodeFailures,
		UnsupportedMessages: c.unsupportedMessages,
		SchemaMisses:        c.schemaMisses,

		ChunksStored:    c.chunksStored,
		ChunksCompleted: c.chunksCompleted,
		ChunksRejected:  c.chunksRejected,
		ChunksSwept:     c.chunksSwept,

		MetaInserted:        c.metaInserted,
		MetaEvicted:         c.metaEvicted,
		MetaPersistFailures: c.metaPersistFailures,

		NotificationsPublished: c.notificationsPublished,
		NotificationsFailed:    c.notificationsFailed,

		Transport:      c.transport,
		StorageBackend: c.storageBackend,
		Adapter:        c.adapter,
	}
}
