package chunk

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/uadp/message"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func fragments(publisherID string, writerID, seq uint16, data []byte, size int) []*message.ChunkedMessage {
	h := message.NewNetworkMessageHeader(publisherID, message.MessageTypeDiscoveryResponse)
	h.SetChunked(true)
	var out []*message.ChunkedMessage
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		out = append(out, &message.ChunkedMessage{
			Envelope:       message.Envelope{NetworkHeader: h},
			WriterID:       writerID,
			SequenceNumber: seq,
			ChunkOffset:    uint32(off),
			TotalSize:      uint32(len(data)),
			Data:           data[off:end],
		})
	}
	return out
}

func TestManager_CompletesExactlyOnceInAnyOrder(t *testing.T) {
	data := payload(10_000)
	rng := rand.New(rand.NewSource(1))

	for trial := range 20 {
		m := NewManager()
		frags := fragments("pub-1", 7, uint16(trial), data, 777)
		rng.Shuffle(len(frags), func(i, j int) { frags[i], frags[j] = frags[j], frags[i] })

		completions := 0
		for i, f := range frags {
			done, err := m.Store(f)
			if err != nil {
				t.Fatalf("trial %d: Store failed: %v", trial, err)
			}
			if done {
				completions++
				if i != len(frags)-1 {
					t.Fatalf("trial %d: completed at fragment %d of %d", trial, i+1, len(frags))
				}
			}
		}
		if completions != 1 {
			t.Fatalf("trial %d: completions = %d, want 1", trial, completions)
		}

		got, err := m.Payload(frags[0])
		if err != nil {
			t.Fatalf("trial %d: Payload failed: %v", trial, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("trial %d: reassembled payload differs", trial)
		}
		if m.Len() != 0 {
			t.Errorf("trial %d: Len = %d after take, want 0", trial, m.Len())
		}
	}
}

func TestManager_TotalSizeMismatch(t *testing.T) {
	m := NewManager()
	frags := fragments("pub-1", 7, 1, payload(100), 50)
	other := fragments("pub-1", 8, 1, payload(100), 50)

	if _, err := m.Store(frags[0]); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := m.Store(other[0]); err != nil {
		t.Fatalf("Store other failed: %v", err)
	}

	bad := *frags[1]
	bad.TotalSize = 120
	_, err := m.Store(&bad)
	if !errors.Is(err, ErrTotalSizeMismatch) {
		t.Fatalf("expected ErrTotalSizeMismatch, got %v", err)
	}
	var mismatch *TotalSizeMismatchError
	if !errors.As(err, &mismatch) || mismatch.Want != 100 || mismatch.Got != 120 {
		t.Fatalf("mismatch error = %+v", mismatch)
	}

	// First fragment's size stays authoritative and other keys are untouched.
	done, err := m.Store(frags[1])
	if err != nil || !done {
		t.Fatalf("Store after mismatch = %v, %v; want true, nil", done, err)
	}
	done, err = m.Store(other[1])
	if err != nil || !done {
		t.Fatalf("Store other after mismatch = %v, %v; want true, nil", done, err)
	}
}

func TestManager_RejectsOverlap(t *testing.T) {
	m := NewManager()
	frags := fragments("pub-1", 7, 1, payload(100), 40)
	if _, err := m.Store(frags[0]); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	overlap := *frags[1]
	overlap.ChunkOffset = 30
	_, err := m.Store(&overlap)
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if st := m.Stats(); st.PendingBytes != 40 {
		t.Errorf("PendingBytes = %d, want 40", st.PendingBytes)
	}
}

func TestManager_IgnoresExactDuplicate(t *testing.T) {
	m := NewManager()
	frags := fragments("pub-1", 7, 1, payload(100), 60)

	for range 2 {
		done, err := m.Store(frags[0])
		if err != nil || done {
			t.Fatalf("Store = %v, %v; want false, nil", done, err)
		}
	}
	done, err := m.Store(frags[1])
	if err != nil || !done {
		t.Fatalf("Store = %v, %v; want true, nil", done, err)
	}
	got, _ := m.TakePayload(KeyOf(frags[0]), false)
	if len(got) != 100 {
		t.Errorf("len(payload) = %d, want 100", len(got))
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d after take without clear, want 1", m.Len())
	}
}

func TestManager_OutOfRange(t *testing.T) {
	m := NewManager()
	f := fragments("pub-1", 7, 1, payload(100), 60)[1]
	f.ChunkOffset = 90
	if _, err := m.Store(f); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestManager_TakePayloadNotFound(t *testing.T) {
	m := NewManager()
	_, err := m.TakePayload(Key{PublisherID: "pub-1", WriterID: 1, SequenceNumber: 1}, true)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_KeysAreIndependent(t *testing.T) {
	m := NewManager()
	a := fragments("pub-1", 7, 1, payload(10), 10)[0]
	b := fragments("pub-2", 7, 1, payload(10), 5)[0]

	if done, _ := m.Store(a); !done {
		t.Fatal("single fragment should complete")
	}
	if done, _ := m.Store(b); done {
		t.Fatal("partial fragment of another publisher should not complete")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestManager_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return now }))

	old := fragments("pub-1", 7, 1, payload(100), 50)[0]
	if _, err := m.Store(old); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	now = now.Add(time.Minute)
	fresh := fragments("pub-1", 7, 2, payload(100), 50)[0]
	if _, err := m.Store(fresh); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	now = now.Add(10 * time.Second)

	if n := m.Sweep(30 * time.Second); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if _, err := m.TakePayload(KeyOf(old), false); !errors.Is(err, ErrNotFound) {
		t.Errorf("old key survived sweep: %v", err)
	}
	if _, err := m.TakePayload(KeyOf(fresh), false); err != nil {
		t.Errorf("fresh key swept: %v", err)
	}
}

func TestManager_ConcurrentKeys(t *testing.T) {
	m := NewManager()
	data := payload(4096)

	var wg sync.WaitGroup
	for w := range 16 {
		wg.Add(1)
		go func(writer uint16) {
			defer wg.Done()
			for _, f := range fragments("pub-1", writer, 1, data, 512) {
				if _, err := m.Store(f); err != nil {
					t.Errorf("writer %d: %v", writer, err)
				}
			}
		}(uint16(w))
	}
	wg.Wait()

	for w := range 16 {
		got, err := m.TakePayload(Key{PublisherID: "pub-1", WriterID: uint16(w), SequenceNumber: 1}, true)
		if err != nil || !bytes.Equal(got, data) {
			t.Errorf("writer %d: payload mismatch (err=%v)", w, err)
		}
	}
}
