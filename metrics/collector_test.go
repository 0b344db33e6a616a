package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("redis", "fs", "webhook")

	c.IncMessageReceived()
	c.IncMessageReceived()
	c.IncMessageReceived()
	c.IncDecoded("meta")
	c.IncDecoded("delta")
	c.IncDecoded("delta")
	c.IncDecodeFailure()
	c.IncUnsupported()
	c.IncSchemaMiss()
	c.IncChunkStored()
	c.IncChunkStored()
	c.IncChunkCompleted()
	c.IncChunkRejected()
	c.AddChunksSwept(3)
	c.IncMetaInserted()
	c.IncMetaEvicted()
	c.IncMetaPersistFailure()
	c.IncNotificationPublished()
	c.IncNotificationFailed()

	s := c.Snapshot()

	if s.MessagesReceived != 3 {
		t.Errorf("MessagesReceived = %d, want 3", s.MessagesReceived)
	}
	if s.DecodedByKind["delta"] != 2 {
		t.Errorf("DecodedByKind[delta] = %d, want 2", s.DecodedByKind["delta"])
	}
	if s.DecodedByKind["meta"] != 1 {
		t.Errorf("DecodedByKind[meta] = %d, want 1", s.DecodedByKind["meta"])
	}
	if s.DecodeFailures != 1 {
		t.Errorf("DecodeFailures = %d, want 1", s.DecodeFailures)
	}
	if s.UnsupportedMessages != 1 {
		t.Errorf("UnsupportedMessages = %d, want 1", s.UnsupportedMessages)
	}
	if s.SchemaMisses != 1 {
		t.Errorf("SchemaMisses = %d, want 1", s.SchemaMisses)
	}
	if s.ChunksStored != 2 {
		t.Errorf("ChunksStored = %d, want 2", s.ChunksStored)
	}
	if s.ChunksCompleted != 1 {
		t.Errorf("ChunksCompleted = %d, want 1", s.ChunksCompleted)
	}
	if s.ChunksRejected != 1 {
		t.Errorf("ChunksRejected = %d, want 1", s.ChunksRejected)
	}
	if s.ChunksSwept != 3 {
		t.Errorf("ChunksSwept = %d, want 3", s.ChunksSwept)
	}
	if s.MetaInserted != 1 || s.MetaEvicted != 1 || s.MetaPersistFailures != 1 {
		t.Errorf("meta counters = %d/%d/%d, want 1/1/1", s.MetaInserted, s.MetaEvicted, s.MetaPersistFailures)
	}
	if s.NotificationsPublished != 1 || s.NotificationsFailed != 1 {
		t.Errorf("notification counters = %d/%d, want 1/1", s.NotificationsPublished, s.NotificationsFailed)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("redis", "s3", "redis")
	s := c.Snapshot()

	if s.Transport != "redis" {
		t.Errorf("Transport = %q, want %q", s.Transport, "redis")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
	if s.Adapter != "redis" {
		t.Errorf("Adapter = %q, want %q", s.Adapter, "redis")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("", "", "")
	c.IncDecoded("key")

	s1 := c.Snapshot()

	c.IncDecoded("key")
	c.IncMessageReceived()

	if s1.DecodedByKind["key"] != 1 {
		t.Errorf("s1.DecodedByKind[key] = %d, want 1 (snapshot should be frozen)", s1.DecodedByKind["key"])
	}
	if s1.MessagesReceived != 0 {
		t.Errorf("s1.MessagesReceived = %d, want 0 (snapshot should be frozen)", s1.MessagesReceived)
	}

	s2 := c.Snapshot()
	if s2.DecodedByKind["key"] != 2 {
		t.Errorf("s2.DecodedByKind[key] = %d, want 2", s2.DecodedByKind["key"])
	}
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector

	c.IncMessageReceived()
	c.IncDecoded("meta")
	c.IncDecodeFailure()
	c.IncChunkStored()
	c.AddChunksSwept(2)
	c.IncMetaEvicted()
	c.IncNotificationFailed()

	s := c.Snapshot()
	if s.MessagesReceived != 0 {
		t.Errorf("nil collector MessagesReceived = %d, want 0", s.MessagesReceived)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("redis", "fs", "")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncMessageReceived()
			c.IncDecoded("delta")
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.MessagesReceived != 50 {
		t.Errorf("MessagesReceived = %d, want 50", s.MessagesReceived)
	}
	if s.DecodedByKind["delta"] != 50 {
		t.Errorf("DecodedByKind[delta] = %d, want 50", s.DecodedByKind["delta"])
	}
}
