// Package metacache holds decoded meta frames keyed by publisher, writer and
// configuration version.
//
// Each (publisher, writer) pair keeps at most Capacity versions; inserting
// into a full pair first evicts the numerically smallest resident version,
// so a newly inserted frame is always kept. The first frame
// stored for a key wins; later frames with the same key are ignored.
//
// With a Store configured, every inserted frame is mirrored as a blob and
// evicted frames are deleted. Mirroring is best effort: failures are logged
// and never surface to callers. Construction restores every mirrored frame
// without writing it back.
package metacache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/metrics"
	"github.com/pithecene-io/uadp/wire"
)

// DefaultCapacity is the number of versions kept per (publisher, writer).
const DefaultCapacity = 10

// DefaultIOTimeout bounds each mirror write, read or delete.
const DefaultIOTimeout = 10 * time.Second

// Store is the blob store meta frames are mirrored to.
// *lode.BlobStore implements it.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, suffix string) ([]string, error)
}

// Cache is the versioned meta frame cache.
// Thread-safe for concurrent access. Mirror I/O runs after the in-memory
// change commits and outside the lock.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*message.MetaFrame
	// versions holds each pair's resident versions in ascending order.
	versions map[writerKey][]message.ConfigurationVersion

	capacity  int
	store     Store
	options   message.Options
	ioTimeout time.Duration
	logger    log.Sink
	metrics   *metrics.Collector
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore enables mirroring to store.
func WithStore(store Store) Option {
	return func(c *Cache) { c.store = store }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithOptions sets the encoding options used to read and write mirrors.
func WithOptions(opts message.Options) Option {
	return func(c *Cache) { c.options = opts }
}

// WithIOTimeout overrides DefaultIOTimeout.
func WithIOTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ioTimeout = d
		}
	}
}

// WithLogger sets the log sink. The default discards everything.
func WithLogger(l log.Sink) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache and, when a store is configured, restores every
// mirrored frame from it. Restore failures are logged and skipped.
func New(ctx context.Context, opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[Key]*message.MetaFrame),
		versions:  make(map[writerKey][]message.ConfigurationVersion),
		capacity:  DefaultCapacity,
		ioTimeout: DefaultIOTimeout,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		c.load(ctx)
	}
	return c
}

// Persistent reports whether a mirror store is configured.
func (c *Cache) Persistent() bool {
	return c.store != nil
}

// Contains reports whether a frame is cached for the key.
func (c *Cache) Contains(publisherID string, writerID uint16, v message.ConfigurationVersion) bool {
	_, ok := c.Get(publisherID, writerID, v)
	return ok
}

// Get returns the cached frame for the key.
func (c *Cache) Get(publisherID string, writerID uint16, v message.ConfigurationVersion) (*message.MetaFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[Key{PublisherID: publisherID, WriterID: writerID, Version: v}]
	return m, ok
}

// Put inserts m unless its key is already cached and reports whether m is
// now resident. Frames without a header are ignored.
func (c *Cache) Put(m *message.MetaFrame) bool {
	return c.put(m, true)
}

func (c *Cache) put(m *message.MetaFrame, mirror bool) bool {
	if m == nil || m.Header() == nil {
		return false
	}
	key := KeyOf(m)
	wk := writerKey{publisherID: key.PublisherID, writerID: key.WriterID}

	c.mu.Lock()
	if _, exists := c.entries[key]; exists {
		c.mu.Unlock()
		return false
	}
	vs := c.versions[wk]
	var evicted *message.MetaFrame
	var evictedKey Key
	if len(vs) >= c.capacity {
		// The smallest resident version makes room; the new frame always stays.
		evictedKey = Key{PublisherID: key.PublisherID, WriterID: key.WriterID, Version: vs[0]}
		evicted = c.entries[evictedKey]
		delete(c.entries, evictedKey)
		vs = slices.Delete(vs, 0, 1)
	}
	c.entries[key] = m
	i, _ := slices.BinarySearchFunc(vs, key.Version, message.ConfigurationVersion.Compare)
	c.versions[wk] = slices.Insert(vs, i, key.Version)
	c.mu.Unlock()

	c.metrics.IncMetaInserted()
	c.logger.Info("Storing meta message for", map[string]any{
		"publisher": key.PublisherID,
		"writer":    key.WriterID,
		"version":   key.Version.String(),
	})

	if evicted != nil {
		c.metrics.IncMetaEvicted()
		c.logger.Info("Evicted meta message", map[string]any{
			"publisher": evictedKey.PublisherID,
			"writer":    evictedKey.WriterID,
			"version":   evictedKey.Version.String(),
		})
		c.removeMirror(evictedKey)
	}

	// A concurrent Put may evict key before this write lands, leaving an
	// orphan mirror; Reconcile removes it.
	if mirror {
		c.writeMirror(key, m)
	}
	return true
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Versions returns the cached versions of a pair in ascending order.
func (c *Cache) Versions(publisherID string, writerID uint16) []message.ConfigurationVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.versions[writerKey{publisherID: publisherID, writerID: writerID}])
}

// Keys returns every cached key, ordered by publisher, writer and version.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b Key) int {
	switch {
	case a.PublisherID < b.PublisherID:
		return -1
	case a.PublisherID > b.PublisherID:
		return 1
	case a.WriterID != b.WriterID:
		return int(a.WriterID) - int(b.WriterID)
	default:
		return a.Version.Compare(b.Version)
	}
}

// Reconcile deletes mirrored frames that are not resident, such as those
// left behind by a failed eviction delete. It returns the names removed.
func (c *Cache) Reconcile(ctx context.Context) ([]string, error) {
	if c.store == nil {
		return nil, nil
	}
	names, err := c.store.List(ctx, FileExt)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range names {
		key, err := ParseFileName(name)
		if err != nil {
			continue
		}
		if c.Contains(key.PublisherID, key.WriterID, key.Version) {
			continue
		}
		if err := c.store.Delete(ctx, name); err != nil {
			c.metrics.IncMetaPersistFailure()
			c.logger.Error("Failed to delete disk meta frame", map[string]any{"file": name, "error": err.Error()})
			continue
		}
		c.logger.Info("Deleted disk meta frame", map[string]any{"file": name})
		removed = append(removed, name)
	}
	return removed, nil
}

func (c *Cache) load(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, c.ioTimeout)
	names, err := c.store.List(listCtx, FileExt)
	cancel()
	if err != nil {
		c.logger.Error("Failed to list disk meta frames", map[string]any{"error": err.Error()})
		return
	}
	// Restore in ascending version order so a pair holding more mirrors
	// than the capacity keeps its largest versions.
	slices.SortStableFunc(names, func(a, b string) int {
		ka, errA := ParseFileName(a)
		kb, errB := ParseFileName(b)
		if errA != nil || errB != nil {
			return 0
		}
		return compareKeys(ka, kb)
	})
	for _, name := range names {
		c.logger.Info("Loading from disk meta frame", map[string]any{"file": name})
		m, err := c.readMirror(ctx, name)
		if err != nil {
			c.logger.Error("Failed to load disk meta frame", map[string]any{"file": name, "error": err.Error()})
			continue
		}
		c.put(m, false)
	}
}

func (c *Cache) readMirror(ctx context.Context, name string) (*message.MetaFrame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.ioTimeout)
	defer cancel()

	data, err := c.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return decodeMirror(data, c.options)
}

func decodeMirror(data []byte, opts message.Options) (*message.MetaFrame, error) {
	dec := wire.NewDecoder(data)
	h, err := message.DecodeNetworkMessageHeader(dec)
	if err != nil {
		return nil, err
	}
	m, err := message.DecodeMetaFrame(dec, opts)
	if err != nil {
		return nil, err
	}
	h.RawPayload = nil
	m.NetworkHeader = h
	return m, nil
}

func (c *Cache) writeMirror(key Key, m *message.MetaFrame) {
	if c.store == nil {
		return
	}
	name := key.FileName()

	// The mirror is written with the cache's options so it can be read
	// back at startup.
	frame := *m
	frame.Options = c.options
	data, err := message.EncodeBytes(&frame, true)
	if err != nil {
		c.metrics.IncMetaPersistFailure()
		c.logger.Error("Failed to encode disk meta frame", map[string]any{"file": name, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()
	c.logger.Info("Writing to disk meta frame", map[string]any{"file": name})
	if err := c.store.Put(ctx, name, data); err != nil {
		c.metrics.IncMetaPersistFailure()
		c.logger.Error("Failed to write disk meta frame", map[string]any{"file": name, "error": err.Error()})
	}
}

func (c *Cache) removeMirror(key Key) {
	if c.store == nil {
		return
	}
	name := key.FileName()
	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()
	if err := c.store.Delete(ctx, name); err != nil {
		c.metrics.IncMetaPersistFailure()
		c.logger.Error("Failed to delete disk meta frame", map[string]any{"file": name, "error": err.Error()})
		return
	}
	c.logger.Info("Deleted disk meta frame", map[string]any{"file": name})
}
