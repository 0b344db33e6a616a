// Package chunk reassembles chunked UADP network messages.
//
// Fragments are keyed by (publisher ID, writer ID, sequence number) in a
// single flat map. The first fragment's declared total size is
// authoritative; a later fragment disagreeing with it is rejected without
// touching any other key. Overlapping fragments are rejected, and exact
// duplicates are ignored, so the received size never exceeds the total.
package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/metrics"
)

var (
	// ErrTotalSizeMismatch matches *TotalSizeMismatchError.
	ErrTotalSizeMismatch = errors.New("chunk total size mismatch")
	// ErrOverlap is returned for a fragment overlapping one already stored.
	ErrOverlap = errors.New("chunk overlaps stored fragment")
	// ErrOutOfRange is returned for a fragment extending past the total size.
	ErrOutOfRange = errors.New("chunk extends past total size")
	// ErrNotFound is returned when no fragments are stored for a key.
	ErrNotFound = errors.New("no chunks stored for key")
)

// Key identifies one chunked message.
type Key struct {
	PublisherID    string
	WriterID       uint16
	SequenceNumber uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d", k.PublisherID, k.WriterID, k.SequenceNumber)
}

// KeyOf derives the key of a chunk from its header and envelope.
func KeyOf(c *message.ChunkedMessage) Key {
	k := Key{WriterID: c.WriterID, SequenceNumber: c.SequenceNumber}
	if h := c.Header(); h != nil {
		k.PublisherID = h.PublisherID
	}
	return k
}

// TotalSizeMismatchError reports a fragment whose declared total size
// disagrees with the first fragment stored for its key.
type TotalSizeMismatchError struct {
	Key  Key
	Want uint32
	Got  uint32
}

func (e *TotalSizeMismatchError) Error() string {
	return fmt.Sprintf("chunk %s: total size %d does not match stored total size %d", e.Key, e.Got, e.Want)
}

// Is reports whether target is ErrTotalSizeMismatch.
func (e *TotalSizeMismatchError) Is(target error) bool {
	return target == ErrTotalSizeMismatch
}

type fragment struct {
	offset uint32
	data   []byte
}

func (f fragment) end() uint64 {
	return uint64(f.offset) + uint64(len(f.data))
}

// Store is the reassembly state of one key. Fragments are kept sorted by
// offset and never overlap.
type Store struct {
	TotalSize    uint32
	ReceivedSize int
	FirstSeen    time.Time
	LastSeen     time.Time

	fragments []fragment
}

// Complete reports whether every byte of the payload has arrived.
func (s *Store) Complete() bool {
	return uint64(s.ReceivedSize) >= uint64(s.TotalSize)
}

// Stats summarizes pending reassembly state.
type Stats struct {
	Pending      int
	PendingBytes int
	Oldest       time.Time
}

// Manager owns all in-flight chunk stores.
// Thread-safe for concurrent access.
type Manager struct {
	mu     sync.Mutex
	stores map[Key]*Store

	logger  log.Sink
	metrics *metrics.Collector
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the log sink. The default discards everything.
func WithLogger(l log.Sink) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithClock overrides time.Now for FirstSeen/LastSeen stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty chunk manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		stores: make(map[Key]*Store),
		logger: log.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store adds a fragment and reports whether it completed its payload.
// It returns true exactly once per key: on the fragment that closes the
// last gap. Rejected fragments leave every store unchanged.
//
// Errors:
//   - *TotalSizeMismatchError: total size disagrees with the stored key
//   - ErrOutOfRange: fragment ends past the declared total size
//   - ErrOverlap: fragment overlaps a stored fragment with different bytes
func (m *Manager) Store(c *message.ChunkedMessage) (bool, error) {
	key := KeyOf(c)
	frag := fragment{offset: c.ChunkOffset, data: c.Data}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.stores[key]
	if exists && s.TotalSize != c.TotalSize {
		m.metrics.IncChunkRejected()
		err := &TotalSizeMismatchError{Key: key, Want: s.TotalSize, Got: c.TotalSize}
		m.logger.Error("chunk total size mismatch", map[string]any{
			"key":   key.String(),
			"want":  s.TotalSize,
			"got":   c.TotalSize,
			"error": err.Error(),
		})
		return false, err
	}
	if frag.end() > uint64(c.TotalSize) {
		m.metrics.IncChunkRejected()
		return false, fmt.Errorf("chunk %s: offset %d + %d bytes > total %d: %w",
			key, c.ChunkOffset, len(c.Data), c.TotalSize, ErrOutOfRange)
	}

	now := m.now()
	if !exists {
		s = &Store{TotalSize: c.TotalSize, FirstSeen: now}
	}
	wasComplete := exists && s.Complete()

	i := sort.Search(len(s.fragments), func(i int) bool {
		return s.fragments[i].offset >= frag.offset
	})
	if i < len(s.fragments) && s.fragments[i].offset == frag.offset &&
		bytes.Equal(s.fragments[i].data, frag.data) {
		s.LastSeen = now
		m.logger.Debug("duplicate chunk ignored", map[string]any{"key": key.String(), "offset": frag.offset})
		return false, nil
	}
	if len(frag.data) > 0 {
		if (i > 0 && s.fragments[i-1].end() > uint64(frag.offset)) ||
			(i < len(s.fragments) && uint64(s.fragments[i].offset) < frag.end()) {
			m.metrics.IncChunkRejected()
			m.logger.Warn("overlapping chunk rejected", map[string]any{
				"key":    key.String(),
				"offset": frag.offset,
				"length": len(frag.data),
			})
			return false, fmt.Errorf("chunk %s: offset %d: %w", key, frag.offset, ErrOverlap)
		}
		s.fragments = append(s.fragments, fragment{})
		copy(s.fragments[i+1:], s.fragments[i:])
		s.fragments[i] = frag
		s.ReceivedSize += len(frag.data)
	}

	s.LastSeen = now
	m.stores[key] = s
	m.metrics.IncChunkStored()

	complete := s.Complete() && !wasComplete
	if complete {
		m.metrics.IncChunkCompleted()
	}
	return complete, nil
}

// TakePayload concatenates the fragments of key in ascending offset order.
// When clear is set the key is removed; this is the only way entries leave
// the manager besides Sweep.
func (m *Manager) TakePayload(key Key, clear bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stores[key]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", key, ErrNotFound)
	}
	out := make([]byte, 0, s.ReceivedSize)
	for _, f := range s.fragments {
		out = append(out, f.data...)
	}
	if clear {
		delete(m.stores, key)
	}
	return out, nil
}

// Payload takes and clears the reassembled payload of c's key.
func (m *Manager) Payload(c *message.ChunkedMessage) ([]byte, error) {
	return m.TakePayload(KeyOf(c), true)
}

// Sweep removes stores that have not received a fragment for longer than
// idle and returns how many were dropped.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var swept []Key
	for key, s := range m.stores {
		if s.LastSeen.Before(cutoff) {
			delete(m.stores, key)
			swept = append(swept, key)
		}
	}
	m.mu.Unlock()

	for _, key := range swept {
		m.logger.Warn("dropping idle partial chunk payload", map[string]any{"key": key.String(), "idle": idle.String()})
	}
	m.metrics.AddChunksSwept(len(swept))
	return len(swept)
}

// Len returns the number of keys with pending fragments.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Stats returns a summary of pending reassembly state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Stats
	for _, s := range m.stores {
		st.Pending++
		st.PendingBytes += s.ReceivedSize
		if st.Oldest.IsZero() || s.FirstSeen.Before(st.Oldest) {
			st.Oldest = s.FirstSeen
		}
	}
	return st
}
