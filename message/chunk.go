package message

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/uadp/wire"
)

// ChunkedMessage is one fragment of a network message body too large for
// a single transport payload. It is returned to callers only while
// reassembly is incomplete.
type ChunkedMessage struct {
	Envelope

	WriterID       uint16
	SequenceNumber uint16
	ChunkOffset    uint32
	TotalSize      uint32
	Data           []byte
}

// DecodeChunkedMessage decodes a chunk envelope. The header is attached
// by the caller.
func DecodeChunkedMessage(dec *wire.Decoder) (*ChunkedMessage, error) {
	c := &ChunkedMessage{}
	var err error
	if c.WriterID, err = dec.ReadUInt16(); err != nil {
		return nil, fmt.Errorf("chunk writer id: %w", err)
	}
	if c.SequenceNumber, err = dec.ReadUInt16(); err != nil {
		return nil, fmt.Errorf("chunk sequence number: %w", err)
	}
	if c.ChunkOffset, err = dec.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("chunk offset: %w", err)
	}
	if c.TotalSize, err = dec.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("chunk total size: %w", err)
	}
	if c.Data, err = dec.ReadByteString(); err != nil {
		return nil, fmt.Errorf("chunk data: %w", err)
	}
	return c, nil
}

// Encode writes the chunk envelope.
func (c *ChunkedMessage) Encode(enc *wire.Encoder, withHeader bool) error {
	if err := c.encodeHeader(enc, withHeader); err != nil {
		return err
	}
	enc.WriteUInt16(c.WriterID)
	enc.WriteUInt16(c.SequenceNumber)
	enc.WriteUInt32(c.ChunkOffset)
	enc.WriteUInt32(c.TotalSize)
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	enc.WriteByteString(data)
	return nil
}

func (c *ChunkedMessage) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("Chunked Message\n")
	rule(&sb, '-')
	writeHeader(&sb, c.NetworkHeader)
	fmt.Fprintf(&sb, "%-20s %d\n", "WriterID:", c.WriterID)
	fmt.Fprintf(&sb, "%-20s %d\n", "Sequence Number:", c.SequenceNumber)
	fmt.Fprintf(&sb, "%-20s %d-%d of %d\n", "Chunk:", c.ChunkOffset, int(c.ChunkOffset)+len(c.Data), c.TotalSize)
	rule(&sb, '=')
	return sb.String()
}

// EncodeChunks encodes m's body and splits it into chunk envelopes of at
// most chunkSize body bytes each. Each envelope carries a copy of m's
// header with the chunk flag set.
func EncodeChunks(m NetworkMessage, writerID, sequenceNumber uint16, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if m.Header() == nil {
		return nil, fmt.Errorf("message has no network header")
	}
	body, err := EncodeBytes(m, false)
	if err != nil {
		return nil, err
	}

	h := m.Header().Clone()
	h.SetChunked(true)
	// Chunk bodies carry no payload header.
	h.Flags &^= FlagPayloadHeader

	var out [][]byte
	for off := 0; off < len(body) || off == 0; off += chunkSize {
		end := min(off+chunkSize, len(body))
		c := &ChunkedMessage{
			Envelope:       Envelope{NetworkHeader: h},
			WriterID:       writerID,
			SequenceNumber: sequenceNumber,
			ChunkOffset:    uint32(off),
			TotalSize:      uint32(len(body)),
			Data:           body[off:end],
		}
		b, err := EncodeBytes(c, true)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		if end == len(body) {
			break
		}
	}
	return out, nil
}
